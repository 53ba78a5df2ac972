// CLAUDE:SUMMARY Tesseract OCR backend: cached availability probe, version 5 gate, one CLI run per image.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// tesseractMinVersion is the minimum accepted major version.
const tesseractMinVersion = 5

type probeState int

const (
	probeUnchecked probeState = iota
	probeReady
	probeRejected
)

// Tesseract shells out to the tesseract binary for OCR. The version probe
// runs once per instance and its outcome is cached; Reset clears it for
// tests. The probe state is mutex-guarded so concurrent callers are safe.
type Tesseract struct {
	bin string

	mu        sync.Mutex
	state     probeState
	rejectErr error
}

// NewTesseract returns an OCR backend invoking the given binary
// ("tesseract" when empty).
func NewTesseract(bin string) *Tesseract {
	if bin == "" {
		bin = "tesseract"
	}
	return &Tesseract{bin: bin}
}

var tesseractVersionRe = regexp.MustCompile(`tesseract\s+v?(\d+)`)

// ensureReady runs the version probe on first use and caches the outcome.
func (t *Tesseract) ensureReady(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case probeReady:
		return nil
	case probeRejected:
		return t.rejectErr
	}

	out, err := exec.CommandContext(ctx, t.bin, "--version").CombinedOutput()
	if err != nil {
		t.state = probeRejected
		t.rejectErr = &ErrMissingDependency{Tool: "tesseract", Reason: "Tesseract is not installed"}
		return t.rejectErr
	}

	m := tesseractVersionRe.FindSubmatch(out)
	if m == nil {
		t.state = probeRejected
		t.rejectErr = &ErrMissingDependency{Tool: "tesseract", Reason: "Tesseract version 5 or above is required"}
		return t.rejectErr
	}
	major, err := strconv.Atoi(string(m[1]))
	if err != nil || major < tesseractMinVersion {
		t.state = probeRejected
		t.rejectErr = &ErrMissingDependency{Tool: "tesseract", Reason: "Tesseract version 5 or above is required"}
		return t.rejectErr
	}

	t.state = probeReady
	return nil
}

// Reset clears the cached probe outcome.
func (t *Tesseract) Reset() {
	t.mu.Lock()
	t.state = probeUnchecked
	t.rejectErr = nil
	t.mu.Unlock()
}

// File OCRs an image file and returns plain text. Image dimensions are
// recorded in metadata when the format is recognized.
func (t *Tesseract) File(ctx context.Context, path string, cfg Config) (*Result, error) {
	if err := t.ensureReady(ctx); err != nil {
		return nil, err
	}
	cfg.defaults()

	dir, err := os.MkdirTemp("", "extrait-ocr-")
	if err != nil {
		return nil, &ErrOCR{Reason: "Failed to OCR using tesseract", Cause: err}
	}
	defer os.RemoveAll(dir)
	outputBase := filepath.Join(dir, "out")

	args := []string{
		path,
		outputBase,
		"-l", cfg.Language,
		"--psm", strconv.Itoa(int(cfg.PSM)),
		"--oem", "1",
		"--loglevel", "OFF",
		"-c", "thresholding_method=1",
	}

	cmd := exec.CommandContext(ctx, t.bin, args...)
	// The tool's own thread pool must never multiply process-level
	// parallelism.
	cmd.Env = append(os.Environ(), "OMP_THREAD_LIMIT=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ErrOCR{
				Reason: "OCR failed with a non-0 return code",
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return nil, &ErrOCR{Reason: "Failed to OCR using tesseract", Cause: err}
	}

	data, err := os.ReadFile(outputBase + ".txt")
	if err != nil {
		return nil, &ErrOCR{Reason: "Failed to OCR using tesseract", Cause: err}
	}

	content := strings.TrimRightFunc(SafeDecode(data, ""), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'
	})

	return &Result{
		Content:  content,
		MimeType: MimePlainText,
		Metadata: imageMetadata(path),
	}, nil
}

// Image OCRs an in-memory image by staging it to a temp file, then follows
// the file route.
func (t *Tesseract) Image(ctx context.Context, data []byte, cfg Config) (*Result, error) {
	if err := t.ensureReady(ctx); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "extrait-img-*"+imageExt(data))
	if err != nil {
		return nil, &ErrOCR{Reason: "Failed to OCR using tesseract", Cause: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, &ErrOCR{Reason: "Failed to OCR using tesseract", Cause: err}
	}
	tmp.Close()

	return t.File(ctx, tmp.Name(), cfg)
}

// imageMetadata decodes width and height without decoding pixel data.
func imageMetadata(path string) Metadata {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}
	}
	defer f.Close()
	c, _, err := image.DecodeConfig(f)
	if err != nil {
		return Metadata{}
	}
	return Metadata{Width: c.Width, Height: c.Height}
}

// imageExt guesses a file extension for staging; tesseract resolves the
// format from content, so a wrong guess is harmless.
func imageExt(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ".png"
	}
	return fmt.Sprintf(".%s", format)
}
