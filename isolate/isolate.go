// CLAUDE:SUMMARY Supervises one-shot extraction children: spawn, JSON exchange, deadline kill, failure classing.
// Package isolate runs one extraction task inside a disposable child
// process under a hard wall-clock deadline. A hang or crash in the task
// costs at most the deadline; it can never take the supervising process
// down with it.
//
// The child is the current binary re-executed with ChildArg. The task
// travels as one JSON document on the child's stdin; the response comes
// back as one JSON document on the child's stdout. Nothing is shared
// between parent and child beyond those two pipes.
package isolate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/hazyhaar/extrait/extract"
)

// ChildArg is the sentinel argument that routes a process into ChildMain.
// It is checked before flag parsing and never documented in help output.
const ChildArg = "__extrait_worker__"

// DefaultTimeout bounds a task when the caller does not set one.
const DefaultTimeout = 30 * time.Second

const defaultGrace = 5 * time.Second

// Failure kinds. The first three are synthesized by the envelope itself;
// the rest classify errors reported by the backend inside the child.
const (
	KindTimeout           = "timeout"
	KindCrash             = "crash"
	KindCanceled          = "canceled"
	KindValidation        = "validation"
	KindMissingDependency = "missing_dependency"
	KindParsing           = "parsing"
	KindOCR               = "ocr"
	KindError             = "error"
)

// Task is one unit of isolated work. Path and Content are alternatives;
// Path wins when both are set.
type Task struct {
	Path     string         `json:"path,omitempty"`
	Content  []byte         `json:"content,omitempty"`
	MimeType string         `json:"mime_type,omitempty"`
	Config   extract.Config `json:"config"`
}

// Failure records why a task produced no result.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Outcome is the envelope's verdict. Exactly one of Result and Failure is
// set. ElapsedMS is parent-measured wall clock, except for the synthetic
// timeout outcome (the deadline value) and the crash outcome (zero).
type Outcome struct {
	Result    *extract.Result `json:"result,omitempty"`
	Failure   *Failure        `json:"failure,omitempty"`
	ElapsedMS float64         `json:"elapsed_ms"`
}

// response is the wire document the child writes. Elapsed time is the
// parent's concern.
type response struct {
	Result  *extract.Result `json:"result,omitempty"`
	Failure *Failure        `json:"failure,omitempty"`
}

// Options configures a Runner.
type Options struct {
	// Timeout is the hard per-task deadline (default DefaultTimeout).
	Timeout time.Duration

	// Grace is how long the reaper waits for a responding child to exit
	// before force-killing it (default 5s).
	Grace time.Duration

	// Inline skips process isolation and runs tasks directly in the
	// caller. Degraded mode: panics and errors are still contained, but a
	// hung task hangs the caller, since no child exists to kill.
	Inline bool

	// Logger for envelope diagnostics.
	Logger *slog.Logger
}

// Runner executes tasks in child processes. Safe for sequential reuse;
// every Run leaves the Runner ready for the next task whatever the
// previous outcome was.
type Runner struct {
	handler Handler
	timeout time.Duration
	grace   time.Duration
	inline  bool
	logger  *slog.Logger

	// spawn is swapped in tests.
	spawn func() (*exec.Cmd, error)
}

// New returns a Runner executing tasks through handler. The handler is
// only invoked in this process for inline execution; the spawned child
// runs whatever handler its ChildMain was given, which by construction is
// the same one.
func New(handler Handler, opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		handler: handler,
		timeout: opts.Timeout,
		grace:   opts.Grace,
		inline:  opts.Inline,
		logger:  opts.Logger,
		spawn:   selfSpawn,
	}
}

func selfSpawn() (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(exe, ChildArg)
	cmd.Stderr = os.Stderr
	return cmd, nil
}

// Run executes one task and always returns an Outcome; it never panics
// and never blocks past the deadline plus the bounded reap.
func (r *Runner) Run(ctx context.Context, task Task) Outcome {
	if r.inline {
		return r.runInline(ctx, task)
	}

	start := time.Now()

	cmd, err := r.spawn()
	if err != nil {
		return r.degrade(ctx, task, err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return r.degrade(ctx, task, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.degrade(ctx, task, err)
	}
	if err := cmd.Start(); err != nil {
		return r.degrade(ctx, task, err)
	}

	// The write can block on the pipe buffer for large payloads; killing
	// the child unblocks it, so it must not run on this goroutine.
	go func() {
		_ = json.NewEncoder(stdin).Encode(task)
		stdin.Close()
	}()

	respCh := make(chan response, 1)
	errCh := make(chan error, 1)
	go func() {
		var resp response
		if err := json.NewDecoder(stdout).Decode(&resp); err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		r.reap(cmd)
		return Outcome{Result: resp.Result, Failure: resp.Failure, ElapsedMS: elapsedMS(start)}

	case err := <-errCh:
		// The pipe closed without a response: the child died before
		// sending, or sent something unreadable.
		r.reap(cmd)
		r.logger.Warn("worker died without responding", "error", err)
		return Outcome{
			Failure:   &Failure{Kind: KindCrash, Message: "worker process crashed"},
			ElapsedMS: 0,
		}

	case <-timer.C:
		r.kill(cmd)
		secs := r.timeout.Seconds()
		return Outcome{
			Failure:   &Failure{Kind: KindTimeout, Message: fmt.Sprintf("extraction timed out after %gs", secs)},
			ElapsedMS: secs * 1000,
		}

	case <-ctx.Done():
		r.kill(cmd)
		return Outcome{
			Failure:   &Failure{Kind: KindCanceled, Message: "extraction canceled"},
			ElapsedMS: elapsedMS(start),
		}
	}
}

// kill force-terminates without waiting. Reaping happens in the
// background; the caller must never block on a child that was just
// declared hung.
func (r *Runner) kill(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	go func() { _ = cmd.Wait() }()
}

// reap waits for a child that already responded, force-killing after the
// grace period. The post-kill wait is bounded too; a child stuck in an
// unkillable state cannot block the caller.
func (r *Runner) reap(cmd *exec.Cmd) {
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.grace):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

// degrade falls back to inline execution when a child cannot be started.
// Inline mode loses the hang-containment guarantee, so the warning is not
// optional.
func (r *Runner) degrade(ctx context.Context, task Task, err error) Outcome {
	r.logger.Warn("worker spawn unavailable, running inline without hang containment", "error", err)
	return r.runInline(ctx, task)
}

func (r *Runner) runInline(ctx context.Context, task Task) Outcome {
	start := time.Now()
	resp := runTask(ctx, r.handler, task)
	return Outcome{Result: resp.Result, Failure: resp.Failure, ElapsedMS: elapsedMS(start)}
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// Classify maps backend errors onto wire failure kinds.
func Classify(err error) *Failure {
	var (
		ve *extract.ErrValidation
		me *extract.ErrMissingDependency
		pe *extract.ErrParsing
		oe *extract.ErrOCR
	)
	kind := KindError
	switch {
	case errors.As(err, &ve):
		kind = KindValidation
	case errors.As(err, &me):
		kind = KindMissingDependency
	case errors.As(err, &pe):
		kind = KindParsing
	case errors.As(err, &oe):
		kind = KindOCR
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindCanceled
	}
	return &Failure{Kind: kind, Message: err.Error()}
}
