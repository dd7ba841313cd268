package cmdstan_test

import (
	"strings"
	"testing"

	"github.com/okian/abbayes/internal/adapters/sampler/cmdstan"
	"github.com/okian/abbayes/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const stanCSV = `# stan_version_major = 2
# model = binomial_conversions_revenue_model
lp__,accept_stat__,stepsize__,treedepth__,n_leapfrog__,divergent__,energy__,p.1,p.2,expected_utility.1,expected_utility.2
# Adaptation terminated
# Step size = 0.9
-10.5,0.91,0.9,2,3,0,11.2,0.05,0.06,2.4995,0.89982
-10.7,0.85,0.9,10,1023,1,11.0,0.052,0.059,2.59948,0.884823
-10.1,0.99,0.9,3,7,0,10.4,0.049,0.062,2.44951,0.929814
#  Elapsed Time: 0.01 seconds (Warm-up)
`

func TestParseOutput(t *testing.T) {
	Convey("Given a Stan CSV file", t, func() {
		out, err := cmdstan.ParseOutput(strings.NewReader(stanCSV))
		So(err, ShouldBeNil)

		Convey("Model columns use bracket names and sampler columns are dropped", func() {
			So(out.Params, ShouldResemble, []string{"p[1]", "p[2]", "expected_utility[1]", "expected_utility[2]"})
			So(out.Chain.Len(), ShouldEqual, 3)
			So(out.Chain.Values[1], ShouldResemble, []float64{0.06, 0.059, 0.062})
			So(out.Chain.LogProb[2], ShouldEqual, -10.1)
		})

		Convey("Divergences and tree depth saturation become sampling issues", func() {
			res := out.Result(10)
			So(res.Chain.Stats.Divergent, ShouldEqual, 1)
			So(res.Chain.Stats.MaxTreedepth, ShouldEqual, 1)
			So(res.Chain.Stats.AcceptRate, ShouldAlmostEqual, (0.91+0.85+0.99)/3, 1e-12)
			So(res.Issues, ShouldHaveLength, 2)
			So(res.Issues[0].Kind, ShouldEqual, model.IssueDivergent)
			So(res.Issues[1].Kind, ShouldEqual, model.IssueMaxTreedepth)
		})

		Convey("A deeper limit clears the tree depth issue", func() {
			res := out.Result(11)
			So(res.Issues, ShouldHaveLength, 1)
		})
	})

	Convey("Given malformed Stan CSV", t, func() {
		Convey("An empty file has no header", func() {
			_, err := cmdstan.ParseOutput(strings.NewReader("# only comments\n"))
			So(err, ShouldNotBeNil)
		})
		Convey("A file without lp__ is rejected", func() {
			_, err := cmdstan.ParseOutput(strings.NewReader("p.1\n0.5\n"))
			So(err, ShouldNotBeNil)
		})
		Convey("A non-numeric draw is rejected", func() {
			_, err := cmdstan.ParseOutput(strings.NewReader("lp__,p.1\n-1,abc\n"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "row 1 column 2")
		})
	})
}
