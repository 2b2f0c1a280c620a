package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long Wait blocks on output pipes after the process was killed.
const waitDelay = 500 * time.Millisecond

type process struct {
	args      []string
	dir       string
	stdin     string
	timeout   time.Duration
	maxOutput int
}

type outcome struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
}

// execute runs p to completion. A non-zero exit or a timeout is reported in the
// outcome; the error is set only when the process could not be started or ctx ended.
func execute(ctx context.Context, p process) (outcome, error) {
	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, p.args[0], p.args[1:]...)
	cmd.Dir = p.dir
	if p.stdin != "" {
		cmd.Stdin = strings.NewReader(p.stdin + "\n")
	}

	stdout := &limitedBuffer{max: p.maxOutput}
	stderr := &limitedBuffer{max: p.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	err := cmd.Run()
	o := outcome{
		stdout: stdout.String(),
		stderr: stderr.String(),
	}

	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		return o, nil
	}

	if cerr := ctx.Err(); cerr != nil {
		return o, cerr
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		o.timedOut = true
		o.exitCode = -1
		return o, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		o.exitCode = ee.ExitCode()
		return o, nil
	}

	return o, fmt.Errorf("start %s: %w", p.args[0], err)
}

// limitedBuffer keeps the first max bytes written to it and drops the rest.
// It never fails a write so a chatty program is not killed by a broken pipe.
type limitedBuffer struct {
	buf       strings.Builder
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.max > 0 {
		room := b.max - b.buf.Len()
		if room <= 0 {
			b.truncated = true
			return n, nil
		}
		if len(p) > room {
			p = p[:room]
			b.truncated = true
		}
	}
	b.buf.Write(p)
	return n, nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
