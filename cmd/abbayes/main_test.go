package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/abbayes/internal/adapters/source"
	"github.com/okian/abbayes/internal/config"
	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/internal/synthetic"
	"github.com/okian/abbayes/pkg/logger"
)

// runCLI executes the root command and returns stdout, stderr and the error.
func runCLI(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeObservations(t *testing.T, name string) string {
	t.Helper()
	recs, err := synthetic.Generate(context.Background(), synthetic.DefaultConfig())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := source.Write(context.Background(), path, "", recs); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestRunCommand(t *testing.T) {
	convey.Convey("Given an observation file", t, func() {
		path := writeObservations(t, "obs.csv")
		fast := []string{"--engine", "conjugate", "--chains", "2", "--warmup", "0", "--samples", "500"}

		convey.Convey("When the conversion model runs with table output", func() {
			out, _, err := runCLI(append([]string{"run", "--data", path}, fast...)...)

			convey.Convey("Then the summary table is printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "p[1]")
				convey.So(out, convey.ShouldContainSubstring, "p[2]")
				convey.So(out, convey.ShouldContainSubstring, "eti_97%")
			})
		})

		convey.Convey("When the revenue model runs with JSON output", func() {
			args := append([]string{"run", "--data", path, "--model", "revenue", "--format", "json"}, fast...)
			out, _, err := runCLI(args...)

			convey.Convey("Then the analysis decodes and tracks expected utility", func() {
				convey.So(err, convey.ShouldBeNil)
				var a model.Analysis
				convey.So(json.Unmarshal([]byte(out), &a), convey.ShouldBeNil)
				convey.So(a.Model, convey.ShouldResemble, model.RevenueModel)
				_, ok := a.Summary.Row("expected_utility[2]")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(a.Run.Chains, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When no data path is given", func() {
			_, _, err := runCLI("run", "--engine", "conjugate")

			convey.Convey("Then it is an input error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(exitCode(err), convey.ShouldEqual, exitInput)
			})
		})

		convey.Convey("When the output format is unknown", func() {
			_, _, err := runCLI("run", "--data", path, "--format", "yaml")
			convey.So(exitCode(err), convey.ShouldEqual, exitInput)
		})
	})

	convey.Convey("Given a file whose conversions exceed trials", t, func() {
		path := filepath.Join(t.TempDir(), "bad.csv")
		body := "treat,arm_id,conversions,trials\n0,0,5,4\n1,1,1,10\n"
		convey.So(os.WriteFile(path, []byte(body), 0o600), convey.ShouldBeNil)

		_, _, err := runCLI("run", "--data", path, "--engine", "conjugate")

		convey.So(errors.Is(err, model.ErrDataIntegrity), convey.ShouldBeTrue)
		convey.So(exitCode(err), convey.ShouldEqual, exitInput)
	})
}

func TestCheckCommand(t *testing.T) {
	convey.Convey("Given the check command", t, func() {
		convey.Convey("The built-in engine is always ready", func() {
			out, _, err := runCLI("check")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "binomial_conversions_revenue")
			convey.So(out, convey.ShouldContainSubstring, "ok")
		})

		convey.Convey("CmdStan without compiled models is a sampler error", func() {
			_ = os.Setenv("ABBAYES_CMDSTAN_MODEL_DIR", t.TempDir())
			defer func() { _ = os.Unsetenv("ABBAYES_CMDSTAN_MODEL_DIR") }()

			out, _, err := runCLI("check", "--engine", "cmdstan")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(out, convey.ShouldContainSubstring, "FAIL")
			convey.So(exitCode(err), convey.ShouldEqual, exitSampler)
		})
	})
}

func TestServe(t *testing.T) {
	convey.Convey("Given a server on a random port", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := config.New(ctx)
		cfg.Engine = "conjugate"
		c := &cli{cfg: cfg, log: logger.Nop()}

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)

		done := make(chan error, 1)
		go func() { done <- c.serve(ctx, ln, cfg) }()

		base := fmt.Sprintf("http://%s", ln.Addr())
		client := &http.Client{Timeout: 5 * time.Second}

		convey.Convey("The API and docs answer until the context is cancelled", func() {
			for _, path := range []string{"/healthz", "/openapi.yaml", "/v1/analyses", "/metrics"} {
				resp, err := client.Get(base + path)
				convey.So(err, convey.ShouldBeNil)
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			}

			cancel()
			convey.So(<-done, convey.ShouldBeNil)
		})
	})
}

func TestExitCode(t *testing.T) {
	convey.Convey("Errors map to exit codes", t, func() {
		convey.So(exitCode(fmt.Errorf("%w: x", model.ErrSampler)), convey.ShouldEqual, exitSampler)
		convey.So(exitCode(fmt.Errorf("%w: x", model.ErrSchema)), convey.ShouldEqual, exitInput)
		convey.So(exitCode(fmt.Errorf("%w: x", config.ErrLoadConfig)), convey.ShouldEqual, exitInput)
		convey.So(exitCode(errors.New("boom")), convey.ShouldEqual, exitError)
		convey.So(execute(context.Background(), []string{"version-does-not-exist"}), convey.ShouldEqual, exitError)
	})
}
