// Package cmdstan runs chains on a compiled CmdStan model executable.
package cmdstan

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/okian/abbayes/internal/adapters/sampler"
	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/pkg/logger"
)

// Name is the engine name used in configuration.
const Name = "cmdstan"

const (
	DefaultModelDir = "models"
	DefaultMaxDepth = 10
	// stderrTail bounds how much child stderr ends up in an error message.
	stderrTail = 2048
)

// ErrModelNotCompiled is returned by Check when the executable is missing.
var ErrModelNotCompiled = errors.New("compiled model not found")

// Engine drives one CmdStan process per chain. The executable of model m is
// <modelDir>/<m.Name> and is only ever read.
type Engine struct {
	modelDir  string
	outputDir string
	maxDepth  int
	keepFiles bool
	logger    logger.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithModelDir sets the directory holding compiled model executables.
func WithModelDir(dir string) Option {
	return func(e *Engine) {
		if dir != "" {
			e.modelDir = dir
		}
	}
}

// WithOutputDir sets where per-chain data and CSV files are written.
// Empty means the system temp directory.
func WithOutputDir(dir string) Option {
	return func(e *Engine) {
		e.outputDir = dir
	}
}

// WithMaxDepth sets the NUTS maximum tree depth.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithKeepFiles keeps per-chain working directories after the run.
func WithKeepFiles(keep bool) Option {
	return func(e *Engine) {
		e.keepFiles = keep
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates the engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		modelDir: DefaultModelDir,
		maxDepth: DefaultMaxDepth,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements sampler.Engine.
func (e *Engine) Name() string { return Name }

// Executable returns the path of the compiled executable for m.
func (e *Engine) Executable(m model.Model) string {
	return filepath.Join(e.modelDir, m.Name)
}

// Check implements sampler.Engine. It never compiles anything; building the
// executable is a one-time setup step outside the pipeline.
func (e *Engine) Check(_ context.Context, m model.Model) error {
	exe := e.Executable(m)
	info, err := os.Stat(exe)
	if err != nil {
		return fmt.Errorf("%w: %w: %s: %w", model.ErrSampler, ErrModelNotCompiled, exe, err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %w: %s is not executable", model.ErrSampler, ErrModelNotCompiled, exe)
	}
	return nil
}

// Args renders the CmdStan command line of one chain.
func (e *Engine) Args(spec sampler.ChainSpec, dataFile, outputFile string) []string {
	return []string{
		"sample",
		"num_samples=" + strconv.Itoa(spec.Samples),
		"num_warmup=" + strconv.Itoa(spec.Warmup),
		"algorithm=hmc", "engine=nuts", "max_depth=" + strconv.Itoa(e.maxDepth),
		"data", "file=" + dataFile,
		"output", "file=" + outputFile,
		"random", "seed=" + strconv.FormatUint(spec.Seed, 10),
		"id=" + strconv.Itoa(spec.Chain+1),
	}
}

// RunChain implements sampler.Engine.
func (e *Engine) RunChain(ctx context.Context, spec sampler.ChainSpec) (sampler.ChainResult, error) {
	dir, err := os.MkdirTemp(e.outputDir, fmt.Sprintf("%s-chain%d-*", spec.Model.Name, spec.Chain+1))
	if err != nil {
		return sampler.ChainResult{}, fmt.Errorf("create chain dir: %w", err)
	}
	if !e.keepFiles {
		defer func() { _ = os.RemoveAll(dir) }()
	}

	data, err := spec.Payload.JSON()
	if err != nil {
		return sampler.ChainResult{}, fmt.Errorf("encode data: %w", err)
	}
	dataFile := filepath.Join(dir, "data.json")
	if err := os.WriteFile(dataFile, data, 0o600); err != nil {
		return sampler.ChainResult{}, fmt.Errorf("write data: %w", err)
	}
	outputFile := filepath.Join(dir, "output.csv")

	cmd := exec.CommandContext(ctx, e.Executable(spec.Model), e.Args(spec, dataFile, outputFile)...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return sampler.ChainResult{}, err
	}
	if err := cmd.Start(); err != nil {
		return sampler.ChainResult{}, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	e.logger.Debug(ctx, "cmdstan started",
		logger.Int("chain", spec.Chain),
		logger.String("dir", dir),
		logger.Int("pid", cmd.Process.Pid),
	)
	forwardProgress(stdout, spec)
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sampler.ChainResult{}, fmt.Errorf("cmdstan killed: %w", ctxErr)
		}
		return sampler.ChainResult{}, fmt.Errorf("cmdstan exited: %w: %s", err, tail(stderr.String()))
	}

	f, err := os.Open(outputFile)
	if err != nil {
		return sampler.ChainResult{}, fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	out, err := ParseOutput(f)
	if err != nil {
		return sampler.ChainResult{}, err
	}
	if out.Chain.Len() != spec.Samples {
		return sampler.ChainResult{}, fmt.Errorf("cmdstan wrote %d draws, want %d", out.Chain.Len(), spec.Samples)
	}
	return out.Result(e.maxDepth), nil
}

// progressLine matches "Iteration: 200 / 4000 [  5%]  (Warmup)".
var progressLine = regexp.MustCompile(`Iteration:\s*(\d+)\s*/\s*(\d+).*\((Warmup|Sampling)\)`)

// forwardProgress drains stdout and reports progress per phase.
func forwardProgress(r io.Reader, spec sampler.ChainSpec) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m := progressLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		done, _ := strconv.Atoi(m[1])
		if strings.EqualFold(m[3], "warmup") {
			spec.Report("warmup", done, spec.Warmup)
			continue
		}
		spec.Report("sampling", done-spec.Warmup, spec.Samples)
	}
	_, _ = io.Copy(io.Discard, r)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return "..." + s[len(s)-stderrTail:]
	}
	return s
}
