package cmdstan_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/okian/abbayes/internal/adapters/sampler"
	"github.com/okian/abbayes/internal/adapters/sampler/cmdstan"
	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/internal/domain/payload"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeModel stands in for a compiled model: it writes a fixed Stan CSV to
// the output file given on its command line.
const fakeModel = `#!/bin/sh
section=""
out=""
for a in "$@"; do
  case "$a" in
    data|output|random) section="$a" ;;
    file=*) if [ "$section" = output ]; then out="${a#file=}"; fi ;;
  esac
done
echo "Iteration: 1 / 4 [ 25%]  (Warmup)"
echo "Iteration: 4 / 4 [100%]  (Sampling)"
cat > "$out" <<CSV
lp__,accept_stat__,stepsize__,treedepth__,n_leapfrog__,divergent__,energy__,p.1,p.2
-10.5,0.91,0.9,2,3,0,11.2,0.05,0.06
-10.7,0.85,0.9,2,3,0,11.0,0.052,0.059
-10.1,0.99,0.9,3,7,0,10.4,0.049,0.062
CSV
`

const failingModel = `#!/bin/sh
echo "Exception: variable does not exist; processing stage=data initialization; variable name=tau" >&2
exit 70
`

func writeExe(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestEngine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts stand in for compiled models")
	}

	Convey("Given a model directory", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		e := cmdstan.New(cmdstan.WithModelDir(dir), cmdstan.WithOutputDir(t.TempDir()), cmdstan.WithMaxDepth(8))

		arms := []model.ArmAggregate{
			{Key: model.ArmKey{Treat: 0, ArmID: "0"}, Trials: 1000, Conversions: 50},
			{Key: model.ArmKey{Treat: 1, ArmID: "1"}, Trials: 1000, Conversions: 60},
		}
		p, err := payload.Build(arms, model.UniformPrior(), model.ConversionModel)
		So(err, ShouldBeNil)
		s := sampler.ChainSpec{Model: model.ConversionModel, Payload: &p, Chain: 2, Seed: 12347, Warmup: 1, Samples: 3}

		Convey("Check fails with a sampler error when the model is not compiled", func() {
			err := e.Check(ctx, model.ConversionModel)
			So(errors.Is(err, model.ErrSampler), ShouldBeTrue)
			So(errors.Is(err, cmdstan.ErrModelNotCompiled), ShouldBeTrue)
		})

		Convey("Check fails when the artifact is not executable", func() {
			So(os.WriteFile(filepath.Join(dir, model.ConversionModel.Name), []byte("data"), 0o644), ShouldBeNil)
			err := e.Check(ctx, model.ConversionModel)
			So(errors.Is(err, cmdstan.ErrModelNotCompiled), ShouldBeTrue)
		})

		Convey("The command line carries the run configuration", func() {
			args := e.Args(s, "d.json", "o.csv")
			So(args, ShouldContain, "num_samples=3")
			So(args, ShouldContain, "num_warmup=1")
			So(args, ShouldContain, "max_depth=8")
			So(args, ShouldContain, "seed=12347")
			So(args, ShouldContain, "id=3")
			So(args, ShouldContain, "file=d.json")
		})

		Convey("When the compiled model runs", func() {
			writeExe(t, dir, model.ConversionModel.Name, fakeModel)
			So(e.Check(ctx, model.ConversionModel), ShouldBeNil)

			var stages []string
			s.Progress = func(stage string, done, total int) { stages = append(stages, stage) }
			res, err := e.RunChain(ctx, s)

			So(err, ShouldBeNil)
			So(res.Params, ShouldResemble, []string{"p[1]", "p[2]"})
			So(res.Chain.Values[0], ShouldResemble, []float64{0.05, 0.052, 0.049})
			So(res.Issues, ShouldBeEmpty)
			So(stages, ShouldResemble, []string{"warmup", "sampling"})
		})

		Convey("When the draw count disagrees with the run configuration", func() {
			writeExe(t, dir, model.ConversionModel.Name, fakeModel)
			s.Samples = 5
			_, err := e.RunChain(ctx, s)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "wrote 3 draws")
		})

		Convey("When the compiled model exits with an error", func() {
			writeExe(t, dir, model.ConversionModel.Name, failingModel)
			_, err := e.RunChain(ctx, s)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "variable name=tau")
		})
	})
}
