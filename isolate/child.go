// CLAUDE:SUMMARY Child-side entry: one task read from stdin, handler run with recover, one response to stdout.
package isolate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hazyhaar/extrait/extract"
)

// Handler executes one task. Production wires PipelineHandler; tests
// substitute scripted behavior.
type Handler func(ctx context.Context, task Task) (*extract.Result, error)

// PipelineHandler adapts an extraction pipeline to the Handler contract.
func PipelineHandler(pipe *extract.Pipeline) Handler {
	return func(ctx context.Context, task Task) (*extract.Result, error) {
		if task.Path != "" {
			return pipe.ExtractFile(ctx, task.Path, task.MimeType, task.Config)
		}
		return pipe.ExtractBytes(ctx, task.Content, task.MimeType, task.Config)
	}
}

// ChildMain is the worker-process entry point. Call it before anything
// else can write to stdout: the real stdout carries exactly one response
// document, so os.Stdout is repointed to /dev/null first and backend or
// tool chatter lands there instead of corrupting the protocol stream.
//
// Never returns; exits the process.
func ChildMain(handler Handler) {
	out := os.Stdout
	if devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0); err == nil {
		os.Stdout = devnull
	}

	var task Task
	if err := json.NewDecoder(os.Stdin).Decode(&task); err != nil {
		writeResponse(out, response{Failure: &Failure{
			Kind:    KindError,
			Message: fmt.Sprintf("invalid task document: %v", err),
		}})
		os.Exit(0)
	}

	writeResponse(out, runTask(context.Background(), handler, task))
	os.Exit(0)
}

// runTask invokes the handler with panic containment. Shared by the child
// and the inline fallback so both produce identical failure records.
func runTask(ctx context.Context, handler Handler, task Task) (resp response) {
	defer func() {
		if p := recover(); p != nil {
			resp = response{Failure: &Failure{
				Kind:    KindCrash,
				Message: fmt.Sprintf("extraction panicked: %v", p),
			}}
		}
	}()

	res, err := handler(ctx, task)
	if err != nil {
		return response{Failure: Classify(err)}
	}
	return response{Result: res}
}

func writeResponse(w io.Writer, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(response{Failure: &Failure{
			Kind:    KindError,
			Message: "response marshal failed",
		}})
	}
	// A write error here means the parent is gone; nothing to report to.
	_, _ = w.Write(append(data, '\n'))
}
