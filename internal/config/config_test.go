package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/abbayes/internal/config"
	"github.com/okian/abbayes/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have the pipeline defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Engine, convey.ShouldEqual, "metropolis")
			convey.So(cfg.Chains, convey.ShouldEqual, 4)
			convey.So(cfg.ParallelChains, convey.ShouldEqual, 4)
			convey.So(cfg.Warmup, convey.ShouldEqual, 2000)
			convey.So(cfg.Samples, convey.ShouldEqual, 2000)
			convey.So(cfg.Seed, convey.ShouldEqual, uint64(12345))
			convey.So(cfg.ShowProgress, convey.ShouldBeTrue)
			convey.So(cfg.CredibleMass, convey.ShouldEqual, 0.94)
			convey.So(cfg.RHatThreshold, convey.ShouldEqual, 1.01)
			convey.So(cfg.ZeroTrialPolicy, convey.ShouldEqual, "reject")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the prior is uniform and payoffs follow the list price", func() {
			convey.So(cfg.Prior(), convey.ShouldResemble, model.UniformPrior())

			rules, err := cfg.Rules()
			convey.So(err, convey.ShouldBeNil)
			convey.So(rules[0], convey.ShouldEqual, 49.99)
			convey.So(rules[1], convey.ShouldAlmostEqual, 14.997, 1e-9)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("An unknown engine is rejected", func() {
			cfg.Engine = "nuts"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("An unknown model is rejected", func() {
			cfg.Model = "poisson"
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(errors.Is(err, model.ErrConfig), convey.ShouldBeTrue)
		})

		convey.Convey("A prior of the wrong length is rejected", func() {
			cfg.AlphaPrior = []float64{1}
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("A discount of one is rejected", func() {
			cfg.Discount = 1
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("An unknown zero-trial policy is rejected", func() {
			cfg.ZeroTrialPolicy = "impute"
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("Credible mass must be a proper fraction", func() {
			cfg.CredibleMass = 1
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("Explicit payoffs replace the price policy", func() {
			cfg.Payoffs = map[string]float64{"0": 10, "1": 7.5}
			rules, err := cfg.Rules()
			convey.So(err, convey.ShouldBeNil)
			convey.So(rules[0], convey.ShouldEqual, 10.0)
			convey.So(rules[1], convey.ShouldEqual, 7.5)
		})

		convey.Convey("Payoff keys must be treatment flags", func() {
			cfg.Payoffs = map[string]float64{"control": 10}
			_, err := cfg.Rules()
			convey.So(errors.Is(err, model.ErrConfig), convey.ShouldBeTrue)
		})
	})
}
