package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/abbayes/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Chains, convey.ShouldEqual, 4)
				convey.So(cfg.Model, convey.ShouldEqual, "conversions")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("ABBAYES_ADDR", ":8080")
			_ = os.Setenv("ABBAYES_CHAINS", "2")
			_ = os.Setenv("ABBAYES_PARALLEL_CHAINS", "1")
			_ = os.Setenv("ABBAYES_SEED", "7")
			_ = os.Setenv("ABBAYES_SHOW_PROGRESS", "false")
			_ = os.Setenv("ABBAYES_ALPHA_PRIOR", "2,3")
			_ = os.Setenv("ABBAYES_ENGINE", "conjugate")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Chains, convey.ShouldEqual, 2)
				convey.So(cfg.ParallelChains, convey.ShouldEqual, 1)
				convey.So(cfg.Seed, convey.ShouldEqual, uint64(7))
				convey.So(cfg.ShowProgress, convey.ShouldBeFalse)
				convey.So(cfg.AlphaPrior, convey.ShouldResemble, []float64{2, 3})
				convey.So(cfg.BetaPrior, convey.ShouldResemble, []float64{1, 1})
				convey.So(cfg.Engine, convey.ShouldEqual, "conjugate")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
# revenue run against the sqlite export
model: revenue
data_path: ./observations.db
sqlite_table: trials
warmup: 500
samples: 1000
alpha_prior: [2, 2]
beta_prior: [40, 40]
payoffs:
  "0": 49.99
  "1": 12.5
cmdstan_model_dir: /opt/models
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ABBAYES_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Model, convey.ShouldEqual, "revenue")
				convey.So(cfg.DataPath, convey.ShouldEqual, "./observations.db")
				convey.So(cfg.SQLiteTable, convey.ShouldEqual, "trials")
				convey.So(cfg.Warmup, convey.ShouldEqual, 500)
				convey.So(cfg.Samples, convey.ShouldEqual, 1000)
				convey.So(cfg.BetaPrior, convey.ShouldResemble, []float64{40, 40})
				convey.So(cfg.CmdStanModelDir, convey.ShouldEqual, "/opt/models")

				rules, err := cfg.Rules()
				convey.So(err, convey.ShouldBeNil)
				convey.So(rules[1], convey.ShouldEqual, 12.5)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
chains: 8
warmup: 300
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ABBAYES_CONFIG", tmpFile)
			_ = os.Setenv("ABBAYES_ADDR", ":8080")
			_ = os.Setenv("ABBAYES_CHAINS", "6")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Chains, convey.ShouldEqual, 6)
				convey.So(cfg.Warmup, convey.ShouldEqual, 300)
			})
		})

		convey.Convey("When a file shortens a prior list", func() {
			tmpFile := createTempConfigFile("alpha_prior: [2]\n")
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.LoadFile(ctx, tmpFile)

			convey.Convey("Then the short prior is rejected instead of padded", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ABBAYES_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("ABBAYES_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("ABBAYES_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("ABBAYES_CHAINS", "several")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the engine is unknown", func() {
			_ = os.Setenv("ABBAYES_ENGINE", "gibbs")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should fail validation", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"ABBAYES_CONFIG",
		"ABBAYES_ADDR",
		"ABBAYES_CHAINS",
		"ABBAYES_PARALLEL_CHAINS",
		"ABBAYES_SEED",
		"ABBAYES_SHOW_PROGRESS",
		"ABBAYES_ALPHA_PRIOR",
		"ABBAYES_ENGINE",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "abbayes-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
