// CLAUDE:SUMMARY Line-oriented worker loop: READY banner, one path per line in, one JSON line out, in order.
// Package worker implements the line-oriented server loop: one file path
// in per line, one JSON response line out, strictly in request order.
package worker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hazyhaar/extrait/extract"
	"github.com/hazyhaar/extrait/isolate"
)

// Exec runs one path through the envelope. Injected so tests can script
// outcomes without spawning processes.
type Exec func(path string) isolate.Outcome

// Loop reads paths from In and writes one response line per path to Out.
type Loop struct {
	In     io.Reader
	Out    io.Writer
	Exec   Exec
	Logger *slog.Logger
}

type successLine struct {
	Content   string           `json:"content"`
	Metadata  extract.Metadata `json:"metadata"`
	ElapsedMS float64          `json:"elapsed_ms"`
}

type errorLine struct {
	Error     string  `json:"error"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// Run announces readiness, then serves until end of input. Blank lines
// are skipped without a response. Per-request failures produce a response
// line and never end the loop; only end-of-input does.
func (l *Loop) Run() error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := fmt.Fprintln(l.Out, "READY"); err != nil {
		return err
	}

	sc := bufio.NewScanner(l.In)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		path := strings.TrimSpace(sc.Text())
		if path == "" {
			continue
		}

		out := l.Exec(path)
		line, err := marshalOutcome(out)
		if err != nil {
			logger.Error("response marshal failed", "path", path, "error", err)
			line, _ = json.Marshal(errorLine{Error: "internal response marshal failure", ElapsedMS: out.ElapsedMS})
		}
		if _, err := l.Out.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return sc.Err()
}

func marshalOutcome(out isolate.Outcome) ([]byte, error) {
	if out.Failure != nil {
		return json.Marshal(errorLine{Error: out.Failure.Message, ElapsedMS: out.ElapsedMS})
	}
	if out.Result == nil {
		return json.Marshal(errorLine{Error: "worker produced no result", ElapsedMS: out.ElapsedMS})
	}
	return json.Marshal(successLine{
		Content:   out.Result.Content,
		Metadata:  out.Result.Metadata,
		ElapsedMS: out.ElapsedMS,
	})
}
