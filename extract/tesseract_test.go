package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeScript stages an executable shell script standing in for an external
// binary.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

const tessOK = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "tesseract 5.3.4"
  exit 0
fi
printf 'Recognized text\n\n' > "$2.txt"
`

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

func TestTesseract_File(t *testing.T) {
	tess := NewTesseract(writeScript(t, "tesseract", tessOK))
	img := filepath.Join(t.TempDir(), "scan.png")
	writePNG(t, img, 4, 2)

	res, err := tess.File(context.Background(), img, DefaultConfig())
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if res.Content != "Recognized text" {
		t.Errorf("content = %q, want trailing whitespace trimmed", res.Content)
	}
	if res.MimeType != MimePlainText {
		t.Errorf("mime type = %q, want %q", res.MimeType, MimePlainText)
	}
	if res.Metadata.Width != 4 || res.Metadata.Height != 2 {
		t.Errorf("dimensions = %dx%d, want 4x2", res.Metadata.Width, res.Metadata.Height)
	}
}

func TestTesseract_Argv(t *testing.T) {
	// WHAT: The OCR invocation carries language, psm, oem and the
	// single-thread cap.
	// WHY: The subprocess contract is the whole backend.
	argsFile := filepath.Join(t.TempDir(), "args")
	script := fmt.Sprintf(`#!/bin/sh
if [ "$1" = "--version" ]; then echo "tesseract 5.0.0"; exit 0; fi
{ echo "$@"; echo "OMP_THREAD_LIMIT=$OMP_THREAD_LIMIT"; } > %q
printf 'ok' > "$2.txt"
`, argsFile)

	tess := NewTesseract(writeScript(t, "tesseract", script))
	_, err := tess.File(context.Background(), "input.png", Config{Language: "deu", PSM: PSMSingleBlock})
	if err != nil {
		t.Fatalf("File: %v", err)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{
		"input.png",
		"-l deu",
		"--psm 6",
		"--oem 1",
		"--loglevel OFF",
		"-c thresholding_method=1",
		"OMP_THREAD_LIMIT=1",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("invocation missing %q:\n%s", want, s)
		}
	}
}

func TestTesseract_NotInstalled(t *testing.T) {
	tess := NewTesseract("/nonexistent/tesseract-binary")
	_, err := tess.File(context.Background(), "x.png", DefaultConfig())
	if err == nil {
		t.Fatal("expected error")
	}
	var md *ErrMissingDependency
	if !errors.As(err, &md) {
		t.Fatalf("expected ErrMissingDependency, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "Tesseract is not installed") {
		t.Errorf("error = %q", err)
	}
}

func TestTesseract_VersionTooOld(t *testing.T) {
	tess := NewTesseract(writeScript(t, "tesseract", "#!/bin/sh\necho \"tesseract 4.1.1\"\n"))
	_, err := tess.File(context.Background(), "x.png", DefaultConfig())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Tesseract version 5 or above is required") {
		t.Errorf("error = %q", err)
	}
}

func TestTesseract_VersionUnparsable(t *testing.T) {
	tess := NewTesseract(writeScript(t, "tesseract", "#!/bin/sh\necho \"something unexpected\"\n"))
	_, err := tess.File(context.Background(), "x.png", DefaultConfig())
	if err == nil {
		t.Fatal("expected error")
	}
	var md *ErrMissingDependency
	if !errors.As(err, &md) {
		t.Fatalf("expected ErrMissingDependency, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "version 5 or above is required") {
		t.Errorf("error = %q", err)
	}
}

func TestTesseract_ProbeCachedAndReset(t *testing.T) {
	// WHAT: The version probe runs once; Reset clears the verdict.
	// WHY: Re-probing on every call would double subprocess count.
	dir := t.TempDir()
	bin := filepath.Join(dir, "tesseract")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\necho \"tesseract 4.0.0\"\n"), 0755); err != nil {
		t.Fatal(err)
	}

	tess := NewTesseract(bin)
	if _, err := tess.File(context.Background(), "x.png", DefaultConfig()); err == nil {
		t.Fatal("expected rejection for old version")
	}

	// Upgrade the binary; the cached verdict must still reject.
	if err := os.WriteFile(bin, []byte(tessOK), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := tess.File(context.Background(), "x.png", DefaultConfig()); err == nil {
		t.Fatal("expected cached rejection before Reset")
	}

	tess.Reset()
	if _, err := tess.File(context.Background(), "x.png", DefaultConfig()); err != nil {
		t.Fatalf("after Reset: %v", err)
	}
}

func TestTesseract_NonZeroExit(t *testing.T) {
	script := `#!/bin/sh
if [ "$1" = "--version" ]; then echo "tesseract 5.2.0"; exit 0; fi
echo "Error, cannot read input" >&2
exit 1
`
	tess := NewTesseract(writeScript(t, "tesseract", script))
	_, err := tess.File(context.Background(), "x.png", DefaultConfig())
	if err == nil {
		t.Fatal("expected error")
	}
	var oe *ErrOCR
	if !errors.As(err, &oe) {
		t.Fatalf("expected ErrOCR, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "OCR failed with a non-0 return code") {
		t.Errorf("error = %q", err)
	}
	if !strings.Contains(oe.Stderr, "cannot read input") {
		t.Errorf("Stderr = %q, want captured diagnostics", oe.Stderr)
	}
}

func TestTesseract_MissingOutput(t *testing.T) {
	// Exit 0 without writing the artifact is still a failure.
	script := `#!/bin/sh
if [ "$1" = "--version" ]; then echo "tesseract 5.2.0"; exit 0; fi
exit 0
`
	tess := NewTesseract(writeScript(t, "tesseract", script))
	_, err := tess.File(context.Background(), "x.png", DefaultConfig())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Failed to OCR using tesseract") {
		t.Errorf("error = %q", err)
	}
}

func TestTesseract_ImageBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatal(err)
	}

	tess := NewTesseract(writeScript(t, "tesseract", tessOK))
	res, err := tess.Image(context.Background(), buf.Bytes(), DefaultConfig())
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if res.Content != "Recognized text" {
		t.Errorf("content = %q", res.Content)
	}
	if res.Metadata.Width != 3 || res.Metadata.Height != 2 {
		t.Errorf("dimensions = %dx%d, want 3x2", res.Metadata.Width, res.Metadata.Height)
	}
}
