package aggregate_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/okian/abbayes/internal/domain/aggregate"
	"github.com/okian/abbayes/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func rec(treat int, arm string, conv, trials float64) model.Record {
	return model.NewRecord(treat, arm, conv, trials)
}

func TestAggregate(t *testing.T) {
	Convey("Given an aggregator", t, func() {
		ctx := context.Background()
		agg := aggregate.New()

		Convey("When rows of two arms are aggregated", func() {
			rows := []model.Record{
				rec(1, "1", 20, 400),
				rec(0, "0", 10, 300),
				rec(0, "0", 40, 700),
				rec(1, "1", 40, 600),
			}
			arms, err := agg.Aggregate(ctx, rows)

			Convey("Then each group holds the sums of its rows", func() {
				So(err, ShouldBeNil)
				So(arms, ShouldHaveLength, 2)
				So(arms[0].Key, ShouldResemble, model.ArmKey{Treat: 0, ArmID: "0"})
				So(arms[0].Trials, ShouldEqual, 1000)
				So(arms[0].Conversions, ShouldEqual, 50)
				So(arms[1].Key, ShouldResemble, model.ArmKey{Treat: 1, ArmID: "1"})
				So(arms[1].Trials, ShouldEqual, 1000)
				So(arms[1].Conversions, ShouldEqual, 60)
			})
		})

		Convey("When the same rows arrive in any order", func() {
			var rows []model.Record
			want := map[string][2]int64{}
			rng := rand.New(rand.NewSource(7))
			for i := 0; i < 200; i++ {
				arm := strconv.Itoa(i % 5)
				trials := float64(rng.Intn(100))
				conv := float64(rng.Intn(int(trials) + 1))
				rows = append(rows, rec(i%5%2, arm, conv, trials))
				w := want[arm]
				w[0] += int64(conv)
				w[1] += int64(trials)
				want[arm] = w
			}
			first, err := agg.Aggregate(ctx, rows)
			So(err, ShouldBeNil)

			Convey("Then the output does not depend on the permutation", func() {
				for trial := 0; trial < 10; trial++ {
					shuffled := append([]model.Record(nil), rows...)
					rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
					again, err := agg.Aggregate(ctx, shuffled)
					So(err, ShouldBeNil)
					So(again, ShouldResemble, first)
				}
			})

			Convey("And there is one aggregate per distinct pair with exact sums", func() {
				So(first, ShouldHaveLength, 5)
				for _, a := range first {
					So(a.Conversions, ShouldEqual, want[a.Key.ArmID][0])
					So(a.Trials, ShouldEqual, want[a.Key.ArmID][1])
					So(a.Conversions, ShouldBeLessThanOrEqualTo, a.Trials)
				}
			})
		})

		Convey("When arm ids are integers", func() {
			arms, err := agg.Aggregate(ctx, []model.Record{
				rec(0, "10", 1, 2), rec(0, "9", 1, 2), rec(1, "100", 1, 2),
			})
			So(err, ShouldBeNil)

			Convey("Then they are ordered numerically", func() {
				So(arms[0].Key.ArmID, ShouldEqual, "9")
				So(arms[1].Key.ArmID, ShouldEqual, "10")
				So(arms[2].Key.ArmID, ShouldEqual, "100")
			})
		})

		Convey("When conversions exceed trials", func() {
			_, err := agg.Aggregate(ctx, []model.Record{rec(0, "a", 11, 10)})
			So(errors.Is(err, model.ErrDataIntegrity), ShouldBeTrue)
		})

		Convey("When a count is negative", func() {
			_, err := agg.Aggregate(ctx, []model.Record{rec(0, "a", -1, 10)})
			So(errors.Is(err, model.ErrDataIntegrity), ShouldBeTrue)
		})

		Convey("When a count is fractional", func() {
			_, err := agg.Aggregate(ctx, []model.Record{rec(0, "a", 1.5, 10)})
			So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
		})

		Convey("When a field is missing", func() {
			r := rec(0, "a", 1, 10)
			r.Trials = nil
			_, err := agg.Aggregate(ctx, []model.Record{r})
			So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
		})

		Convey("When the arm id is empty", func() {
			_, err := agg.Aggregate(ctx, []model.Record{rec(0, "", 1, 10)})
			So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
		})

		Convey("When the treatment flag is not binary", func() {
			_, err := agg.Aggregate(ctx, []model.Record{rec(2, "a", 1, 10)})
			So(errors.Is(err, model.ErrSchema), ShouldBeTrue)
		})

		Convey("When one arm id appears under both flags", func() {
			_, err := agg.Aggregate(ctx, []model.Record{rec(0, "a", 1, 10), rec(1, "a", 1, 10)})
			So(errors.Is(err, model.ErrDataIntegrity), ShouldBeTrue)
		})

		Convey("When sums overflow", func() {
			_, err := agg.Aggregate(ctx, []model.Record{
				rec(0, "a", 0, math.MaxInt64/2+10),
				rec(0, "a", 0, math.MaxInt64/2+10),
			})
			So(errors.Is(err, model.ErrDataIntegrity), ShouldBeTrue)
		})

		Convey("When numeric arm ids exceed the int64 range", func() {
			var rows []model.Record
			body := `[{"treat":0,"arm_id":1e20,"conversions":5,"trials":10},
				{"treat":0,"arm_id":3e20,"conversions":7,"trials":10}]`
			So(json.Unmarshal([]byte(body), &rows), ShouldBeNil)

			arms, err := agg.Aggregate(ctx, rows)

			Convey("Then they stay distinct arms", func() {
				So(err, ShouldBeNil)
				So(arms, ShouldHaveLength, 2)
				So(arms[0].Key.ArmID, ShouldEqual, "1e20")
				So(arms[0].Conversions, ShouldEqual, 5)
				So(arms[1].Key.ArmID, ShouldEqual, "3e20")
				So(arms[1].Conversions, ShouldEqual, 7)
			})
		})

		Convey("When there are no rows", func() {
			_, err := agg.Aggregate(ctx, nil)
			So(errors.Is(err, model.ErrDataIntegrity), ShouldBeTrue)
		})

		Convey("When an arm has zero trials", func() {
			rows := []model.Record{rec(0, "0", 0, 0), rec(1, "1", 60, 1000)}

			Convey("Then the default policy rejects the run", func() {
				_, err := agg.Aggregate(ctx, rows)
				So(errors.Is(err, model.ErrDataIntegrity), ShouldBeTrue)
			})

			Convey("Then the exclude policy drops the arm", func() {
				excl := aggregate.New(aggregate.WithZeroTrialPolicy(aggregate.ZeroTrialExclude))
				arms, err := excl.Aggregate(ctx, rows)
				So(err, ShouldBeNil)
				So(arms, ShouldHaveLength, 1)
				So(arms[0].Key.ArmID, ShouldEqual, "1")
			})

			Convey("Then excluding every arm is still an error", func() {
				excl := aggregate.New(aggregate.WithZeroTrialPolicy(aggregate.ZeroTrialExclude))
				_, err := excl.Aggregate(ctx, []model.Record{rec(0, "0", 0, 0)})
				So(errors.Is(err, model.ErrDataIntegrity), ShouldBeTrue)
			})
		})
	})
}
