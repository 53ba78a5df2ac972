package httpapi

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/extrait/dbopen"
	"github.com/hazyhaar/extrait/extract"
	"github.com/hazyhaar/extrait/isolate"
	"github.com/hazyhaar/extrait/journal"
)

func newTestRouter(t *testing.T, pipeOpts extract.Options, opts Options) http.Handler {
	t.Helper()
	pipe := extract.New(pipeOpts)
	// Inline keeps tests hermetic; the envelope's spawn path is covered in
	// the isolate package.
	runner := isolate.New(isolate.PipelineHandler(pipe), isolate.Options{Inline: true})
	return New(pipe, runner, opts).Router()
}

type upload struct {
	name string
	data []byte
}

func multipartBody(t *testing.T, uploads []upload) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, u := range uploads {
		part, err := mw.CreateFormFile("files", u.name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(u.data)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func postExtract(t *testing.T, router http.Handler, uploads []upload, query string) *httptest.ResponseRecorder {
	t.Helper()
	body, ctype := multipartBody(t, uploads)
	req := httptest.NewRequest("POST", "/extract"+query, body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body["error"]
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, extract.Options{}, Options{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("body = %q", w.Body.String())
	}
	// The shield stack is in front of every route.
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing")
	}
}

func TestExtract_PlainText(t *testing.T) {
	router := newTestRouter(t, extract.Options{}, Options{})

	w := postExtract(t, router, []upload{{"note.txt", []byte("hello extraction")}}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}

	var results []extract.Result
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Content != "hello extraction" {
		t.Errorf("content = %q", results[0].Content)
	}
	if results[0].MimeType != extract.MimePlainText {
		t.Errorf("mime type = %q", results[0].MimeType)
	}
}

func TestExtract_MultipleFilesOrdered(t *testing.T) {
	router := newTestRouter(t, extract.Options{}, Options{})

	w := postExtract(t, router, []upload{
		{"a.txt", []byte("first")},
		{"b.md", []byte("# second")},
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}

	var results []extract.Result
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Content != "first" {
		t.Errorf("results[0] = %q", results[0].Content)
	}
	if results[1].MimeType != extract.MimeMarkdown {
		t.Errorf("results[1] mime = %q", results[1].MimeType)
	}
}

func TestExtract_UnsupportedType(t *testing.T) {
	router := newTestRouter(t, extract.Options{}, Options{})

	// Zip magic sniffs to application/zip, which no backend accepts.
	zip := append([]byte("PK\x03\x04"), make([]byte, 64)...)
	w := postExtract(t, router, []upload{{"archive.zip", zip}}, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
	if msg := errorBody(t, w); !strings.Contains(msg, "Unsupported mime type") {
		t.Errorf("error = %q", msg)
	}
}

func TestExtract_NoFiles(t *testing.T) {
	router := newTestRouter(t, extract.Options{}, Options{})

	w := postExtract(t, router, nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
	if msg := errorBody(t, w); !strings.Contains(msg, "no files") {
		t.Errorf("error = %q", msg)
	}
}

func TestExtract_BadQueryParam(t *testing.T) {
	router := newTestRouter(t, extract.Options{}, Options{})

	w := postExtract(t, router, []upload{{"a.txt", []byte("x")}}, "?psm=sideways")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}

func TestExtract_MissingToolIsGeneric500(t *testing.T) {
	// WHAT: A missing OCR binary surfaces as the generic 500 body.
	// WHY: Server misconfiguration details never leak to API clients.
	router := newTestRouter(t, extract.Options{TesseractBin: "/nonexistent/tesseract"}, Options{})

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	w := postExtract(t, router, []upload{{"scan.png", buf.Bytes()}}, "")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", w.Code)
	}
	if msg := errorBody(t, w); msg != genericError {
		t.Errorf("error = %q, want generic message", msg)
	}
}

func TestExtractPath_Success(t *testing.T) {
	router := newTestRouter(t, extract.Options{}, Options{})

	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("from disk"), 0o644); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(pathRequest{Path: path})
	req := httptest.NewRequest("POST", "/extract/path", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	var res extract.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Content != "from disk" {
		t.Errorf("content = %q", res.Content)
	}
}

func TestExtractPath_Missing(t *testing.T) {
	router := newTestRouter(t, extract.Options{}, Options{})

	body, _ := json.Marshal(pathRequest{Path: "/nonexistent/document.pdf"})
	req := httptest.NewRequest("POST", "/extract/path", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
	if msg := errorBody(t, w); !strings.Contains(msg, "does not exist") {
		t.Errorf("error = %q", msg)
	}
}

func TestExtractPath_EmptyPath(t *testing.T) {
	router := newTestRouter(t, extract.Options{}, Options{})

	req := httptest.NewRequest("POST", "/extract/path", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
	if msg := errorBody(t, w); !strings.Contains(msg, "path is required") {
		t.Errorf("error = %q", msg)
	}
}

func TestExtractPath_BadJSON(t *testing.T) {
	router := newTestRouter(t, extract.Options{}, Options{})

	req := httptest.NewRequest("POST", "/extract/path", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}

func TestJournalRecordsRequests(t *testing.T) {
	db := dbopen.OpenMemory(t)
	store := journal.NewStore(db)
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, extract.Options{}, Options{Journal: store})

	// One success, one failure.
	postExtract(t, router, []upload{{"good.txt", []byte("fine")}}, "")
	zip := append([]byte("PK\x03\x04"), make([]byte, 64)...)
	postExtract(t, router, []upload{{"bad.zip", zip}}, "")

	store.Close()

	var ok, failed int
	db.QueryRow("SELECT COUNT(*) FROM extractions WHERE status='ok'").Scan(&ok)
	db.QueryRow("SELECT COUNT(*) FROM extractions WHERE status='error'").Scan(&failed)
	if ok != 1 || failed != 1 {
		t.Fatalf("journal rows: ok=%d error=%d, want 1/1", ok, failed)
	}

	var source, kind string
	if err := db.QueryRow("SELECT source, error_kind FROM extractions WHERE status='error'").Scan(&source, &kind); err != nil {
		t.Fatal(err)
	}
	if source != "bad.zip" {
		t.Errorf("source = %q", source)
	}
	if kind != isolate.KindValidation {
		t.Errorf("error_kind = %q", kind)
	}
}

func TestConfigFromQuery(t *testing.T) {
	tests := []struct {
		query   string
		want    extract.Config
		wantErr bool
	}{
		{"", extract.DefaultConfig(), false},
		{"?force_ocr=true", extract.Config{ForceOCR: true, Language: "eng", MaxProcesses: 1, PSM: extract.PSMAuto}, false},
		{"?language=deu&psm=6", extract.Config{Language: "deu", MaxProcesses: 1, PSM: extract.PSMSingleBlock}, false},
		{"?max_processes=4", extract.Config{Language: "eng", MaxProcesses: 4, PSM: extract.PSMAuto}, false},
		{"?force_ocr=maybe", extract.Config{}, true},
		{"?psm=99", extract.Config{}, true},
		{"?max_processes=0", extract.Config{}, true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("POST", "/extract"+tt.query, nil)
		got, err := configFromQuery(req)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.query)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tt.query, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %+v, want %+v", tt.query, got, tt.want)
		}
	}
}
