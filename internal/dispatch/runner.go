// Package dispatch runs callback commands for watch events.
//
// A command line is split into words the way a POSIX shell would (quotes,
// escapes and $VAR expansion) and executed directly, without a shell.
// Standard output is relayed line by line to the configured writer;
// standard error is relayed to the logger.
package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/shell"

	dwerrors "github.com/Aman-CERP/dirwatch/internal/errors"
)

const (
	// maxLineSize bounds a single relayed output line.
	maxLineSize = 1024 * 1024

	// outputGrace is how long output is still read after the command
	// exits or is killed. Background children holding the output open
	// are cut off after it.
	outputGrace = time.Second
)

// ErrEmptyCommand is returned for a command line without words.
var ErrEmptyCommand = errors.New("empty command")

// Options configures a Runner.
type Options struct {
	// Timeout kills a command still running after this long.
	// Zero disables the timeout.
	Timeout time.Duration

	// Stdout receives the command's standard output.
	// Default: os.Stdout
	Stdout io.Writer

	// Logger receives the command's standard error and diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger

	// Env resolves $VAR references while splitting the command line.
	// Default: the process environment
	Env func(name string) string
}

// Runner executes callback commands synchronously.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger
	env     func(string) string

	mu     sync.Mutex
	stdout io.Writer
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	r := &Runner{
		timeout: opts.Timeout,
		logger:  opts.Logger,
		env:     opts.Env,
		stdout:  opts.Stdout,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.stdout == nil {
		r.stdout = os.Stdout
	}
	if r.env == nil {
		r.env = os.Getenv
	}
	return r
}

// Dispatch runs command and waits until it exits and its output has been
// relayed. The command runs in its own process group; cancelling ctx or
// reaching the timeout kills the whole group.
func (r *Runner) Dispatch(ctx context.Context, command string) error {
	args, err := shell.Fields(command, r.env)
	if err != nil {
		return callbackError("parse callback command", command, err)
	}
	if len(args) == 0 {
		return callbackError("parse callback command", command, ErrEmptyCommand)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	setProcessGroup(cmd)
	cmd.WaitDelay = outputGrace

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	start := time.Now()
	if err := cmd.Start(); err != nil {
		_ = stdoutW.Close()
		_ = stderrW.Close()
		return callbackError("start callback", command, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		return relayLines(stdoutR, r.writeStdout)
	})
	g.Go(func() error {
		return relayLines(stderrR, func(line string) {
			r.logger.Warn("callback stderr",
				slog.String("command", args[0]),
				slog.String("line", line))
		})
	})
	waitErr := cmd.Wait()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	relayErr := g.Wait()

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// Exited successfully, but a background child still holds the
		// output open; its further output is discarded.
		r.logger.Warn("callback left output open",
			slog.String("command", args[0]),
			slog.Duration("grace", outputGrace))
		waitErr = nil
	}

	r.logger.Debug("callback finished",
		slog.String("command", args[0]),
		slog.Duration("duration", time.Since(start)),
		slog.Int("exit_code", cmd.ProcessState.ExitCode()))

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && r.timeout > 0:
		return callbackError(fmt.Sprintf("callback timed out after %s", r.timeout), command, ctx.Err())
	case waitErr != nil:
		return callbackError("callback failed", command, waitErr)
	case relayErr != nil:
		return callbackError("relay callback output", command, relayErr)
	}
	return nil
}

func (r *Runner) writeStdout(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.stdout, line)
}

// relayLines calls emit for every line read from rd. After a read error
// the rest of rd is discarded so the writer never blocks.
func relayLines(rd io.Reader, emit func(string)) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		emit(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, rd)
		return err
	}
	return nil
}

func callbackError(message, command string, cause error) error {
	return dwerrors.New(dwerrors.ErrCodeCallbackFailed, message+": "+cause.Error(), cause).
		WithDetail("command", command)
}
