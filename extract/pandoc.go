// CLAUDE:SUMMARY Office document extractor shelling out to pandoc (docx, odt, epub, rtf, latex, and friends).
package extract

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// pandocStageExt maps pandoc reader names to staging extensions for the
// bytes entry point.
var pandocStageExt = map[string]string{
	"docx":    ".docx",
	"odt":     ".odt",
	"rtf":     ".rtf",
	"epub":    ".epub",
	"rst":     ".rst",
	"org":     ".org",
	"latex":   ".tex",
	"docbook": ".xml",
}

// extractPandocFile converts an office/markup document to markdown through
// the external pandoc binary.
func (p *Pipeline) extractPandocFile(ctx context.Context, path, mediaType string) (*Result, error) {
	format := pandocFormats[mediaType]

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.pandocBin, path,
		"--from", format,
		"--to", "markdown",
		"--wrap=preserve",
		"--quiet")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cause := err
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				cause = errors.New(msg)
			}
			return nil, &ErrParsing{Format: format, Reason: "pandoc conversion failed", Cause: cause}
		}
		return nil, &ErrParsing{Format: format, Reason: "pandoc is not available", Cause: err}
	}

	return &Result{
		Content:  strings.TrimSpace(SafeDecode(stdout.Bytes(), "")),
		MimeType: MimeMarkdown,
		Metadata: Metadata{},
	}, nil
}

// extractPandocBytes stages in-memory content to a temp file, then follows
// the file route. Pandoc wants a real file for container formats.
func (p *Pipeline) extractPandocBytes(ctx context.Context, data []byte, mediaType string) (*Result, error) {
	ext := pandocStageExt[pandocFormats[mediaType]]

	tmp, err := os.CreateTemp("", "extrait-*"+ext)
	if err != nil {
		return nil, &ErrParsing{Format: pandocFormats[mediaType], Reason: "could not stage document", Cause: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, &ErrParsing{Format: pandocFormats[mediaType], Reason: "could not stage document", Cause: err}
	}
	tmp.Close()

	return p.extractPandocFile(ctx, tmp.Name(), mediaType)
}
