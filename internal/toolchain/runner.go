package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/errors"
)

const (
	defaultCompileTimeout = 10 * time.Second
	defaultRunTimeout     = 5 * time.Second
	defaultMaxOutputBytes = 1 << 20
)

type RunnerConfig struct {
	Toolchains     *Set
	Arena          *Arena
	CompileTimeout time.Duration
	RunTimeout     time.Duration
	MaxOutputBytes int
}

// Runner builds and runs programs. It holds no per-execution state and is safe for concurrent use.
type Runner struct {
	toolchains     *Set
	arena          *Arena
	compileTimeout time.Duration
	runTimeout     time.Duration
	maxOutput      int
}

func NewRunner(c RunnerConfig) *Runner {
	r := &Runner{
		toolchains:     c.Toolchains,
		arena:          c.Arena,
		compileTimeout: c.CompileTimeout,
		runTimeout:     c.RunTimeout,
		maxOutput:      c.MaxOutputBytes,
	}

	if r.compileTimeout <= 0 {
		r.compileTimeout = defaultCompileTimeout
	}
	if r.runTimeout <= 0 {
		r.runTimeout = defaultRunTimeout
	}
	if r.maxOutput <= 0 {
		r.maxOutput = defaultMaxOutputBytes
	}

	return r
}

// Supports reports whether the language has a toolchain.
func (r *Runner) Supports(l domain.Language) bool {
	_, ok := r.toolchains.Lookup(l)
	return ok
}

// Build writes source into a fresh workspace and compiles it when the language needs it.
// The caller must Close the returned Build. On error the workspace is already released.
func (r *Runner) Build(ctx context.Context, l domain.Language, source string) (*Build, error) {
	tc, ok := r.toolchains.Lookup(l)
	if !ok {
		return nil, errors.UnsupportedLanguage(string(l))
	}

	ws, err := r.arena.Create()
	if err != nil {
		return nil, err
	}

	b := &Build{
		ws:        ws,
		language:  l,
		timeout:   r.runTimeout,
		maxOutput: r.maxOutput,
	}

	plan, err := tc.Prepare(ws, source)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.run = plan.Run

	if len(plan.Compile) > 0 {
		if err := r.compile(ctx, ws, plan.Compile); err != nil {
			b.Close()
			return nil, err
		}
	}

	return b, nil
}

func (r *Runner) compile(ctx context.Context, ws *Workspace, args []string) error {
	o, err := execute(ctx, process{
		args:      args,
		dir:       ws.Dir,
		timeout:   r.compileTimeout,
		maxOutput: r.maxOutput,
	})
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	if o.timedOut {
		return &CompileError{Diagnostic: fmt.Sprintf("compilation timed out (%s)", r.compileTimeout)}
	}

	if o.exitCode != 0 {
		out := o.stderr
		if out == "" {
			out = o.stdout
		}
		return &CompileError{Diagnostic: ParseDiagnostic(out), Stderr: o.stderr}
	}

	return nil
}

// Execute builds, runs once with stdin and releases the workspace.
func (r *Runner) Execute(ctx context.Context, l domain.Language, source, stdin string) (string, error) {
	b, err := r.Build(ctx, l, source)
	if err != nil {
		return "", err
	}
	defer b.Close()

	return b.Run(ctx, stdin)
}

// Build is a compiled program inside its workspace.
type Build struct {
	ws        *Workspace
	language  domain.Language
	run       []string
	timeout   time.Duration
	maxOutput int

	closeOnce sync.Once
}

// Run executes the program once and returns its stdout.
func (b *Build) Run(ctx context.Context, stdin string) (string, error) {
	o, err := execute(ctx, process{
		args:      b.run,
		dir:       b.ws.Dir,
		stdin:     stdin,
		timeout:   b.timeout,
		maxOutput: b.maxOutput,
	})
	if err != nil {
		return "", fmt.Errorf("run: %w", err)
	}

	if o.timedOut {
		return o.stdout, &RuntimeError{Stderr: o.stderr, ExitCode: o.exitCode, TimedOut: true, Timeout: b.timeout}
	}

	if o.exitCode != 0 {
		return o.stdout, &RuntimeError{Stderr: o.stderr, ExitCode: o.exitCode}
	}

	return o.stdout, nil
}

// Close releases the workspace. A failure is logged and otherwise ignored.
func (b *Build) Close() {
	b.closeOnce.Do(func() {
		if err := b.ws.Release(); err != nil {
			slog.Warn("toolchain: release workspace failed",
				"workspace", b.ws.ID,
				"language", b.language,
				"error", err,
			)
		}
	})
}
