// CLAUDE:SUMMARY HTTP surface: multipart upload and path extraction endpoints on chi behind shield middleware.
// Package httpapi exposes the extraction pipeline over HTTP.
//
// Upload extraction runs in-process; path extraction runs through the
// execution envelope so a hanging document cannot take the service down.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/extrait/extract"
	"github.com/hazyhaar/extrait/isolate"
	"github.com/hazyhaar/extrait/journal"
	"github.com/hazyhaar/extrait/shield"
)

const genericError = "An internal server error occurred."

// Server wires the extraction pipeline, the execution envelope, and the
// journal behind a chi router.
type Server struct {
	pipe    *extract.Pipeline
	runner  *isolate.Runner
	store   *journal.Store
	logger  *slog.Logger
	maxBody int64
}

// Options configures optional Server collaborators.
type Options struct {
	Journal *journal.Store // nil disables journaling
	Logger  *slog.Logger   // nil uses slog.Default()
	MaxBody int64          // request body cap; 0 means 128 MB
}

// New creates the HTTP surface around pipe. runner handles /extract/path.
func New(pipe *extract.Pipeline, runner *isolate.Runner, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := opts.MaxBody
	if maxBody <= 0 {
		maxBody = 128 << 20
	}
	return &Server{
		pipe:    pipe,
		runner:  runner,
		store:   opts.Journal,
		logger:  logger,
		maxBody: maxBody,
	}
}

// Router builds the chi router with the shield middleware stack applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.maxBody) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/extract", s.handleExtract)
	r.Post("/extract/path", s.handleExtractPath)

	return r
}

// handleExtract accepts one or more multipart "files" parts and responds
// with a JSON array of results in part order. The first failing file aborts
// the request with the mapped error status.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	cfg, err := configFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no files provided"))
		return
	}

	results := make([]*extract.Result, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("read %s: %w", fh.Filename, err))
			return
		}

		start := time.Now()
		res, err := s.pipe.ExtractBytes(r.Context(), data, partMediaType(fh), cfg)
		s.journal(uploadEntry(fh.Filename, len(data), res, err, time.Since(start)))
		if err != nil {
			s.writeExtractError(w, r, err)
			return
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, results)
}

type pathRequest struct {
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
}

// handleExtractPath extracts a file already on the server's filesystem.
// The work runs in the envelope child, so a hang or crash comes back as a
// tagged failure instead of wedging the handler goroutine.
func (s *Server) handleExtractPath(w http.ResponseWriter, r *http.Request) {
	cfg, err := configFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, errors.New("path is required"))
		return
	}

	out := s.runner.Run(r.Context(), isolate.Task{Path: req.Path, MimeType: req.MimeType, Config: cfg})
	s.journal(pathEntry(req.Path, req.MimeType, out))
	if out.Failure != nil {
		s.writeFailure(w, r, out.Failure)
		return
	}
	writeJSON(w, http.StatusOK, out.Result)
}

// writeExtractError maps pipeline errors onto HTTP statuses: caller mistakes
// are 400, bad documents are 422, everything else is a generic 500.
func (s *Server) writeExtractError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *extract.ErrValidation
		pe *extract.ErrParsing
		oe *extract.ErrOCR
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &pe), errors.As(err, &oe):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		shield.GetLogger(r.Context()).Error("extraction failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": genericError})
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, f *isolate.Failure) {
	switch f.Kind {
	case isolate.KindValidation:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": f.Message})
	case isolate.KindError:
		shield.GetLogger(r.Context()).Error("extraction failed", "kind", f.Kind, "message", f.Message)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": genericError})
	default:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": f.Message})
	}
}

func (s *Server) journal(e *journal.Entry) {
	if s.store != nil {
		s.store.RecordAsync(e)
	}
}

func uploadEntry(filename string, size int, res *extract.Result, err error, dur time.Duration) *journal.Entry {
	source := filename
	if source == "" {
		source = fmt.Sprintf("bytes:%d", size)
	}
	e := &journal.Entry{
		Source:     source,
		Status:     journal.StatusOK,
		DurationUs: dur.Microseconds(),
	}
	if res != nil {
		e.MediaType = res.MimeType
		e.ContentLen = len(res.Content)
	}
	if err != nil {
		f := isolate.Classify(err)
		e.Status = journal.StatusError
		e.ErrorKind = f.Kind
		e.Message = f.Message
	}
	return e
}

func pathEntry(path, mediaType string, out isolate.Outcome) *journal.Entry {
	e := &journal.Entry{
		Source:     path,
		MediaType:  mediaType,
		Status:     journal.StatusOK,
		DurationUs: int64(out.ElapsedMS * 1000),
	}
	if out.Result != nil {
		e.ContentLen = len(out.Result.Content)
		if e.MediaType == "" {
			e.MediaType = out.Result.MimeType
		}
	}
	if out.Failure != nil {
		e.Status = journal.StatusError
		e.ErrorKind = out.Failure.Kind
		e.Message = out.Failure.Message
	}
	return e
}

// configFromQuery builds the per-request config from query parameter
// overrides on top of the defaults.
func configFromQuery(r *http.Request) (extract.Config, error) {
	cfg := extract.DefaultConfig()
	q := r.URL.Query()
	if v := q.Get("force_ocr"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid force_ocr %q", v)
		}
		cfg.ForceOCR = b
	}
	if v := q.Get("language"); v != "" {
		cfg.Language = v
	}
	if v := q.Get("psm"); v != "" {
		m, err := extract.ParsePageSegMode(v)
		if err != nil {
			return cfg, err
		}
		cfg.PSM = m
	}
	if v := q.Get("max_processes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("invalid max_processes %q", v)
		}
		cfg.MaxProcesses = n
	}
	return cfg, nil
}

// partMediaType resolves the media type of an upload: the file name's
// extension wins, then the part's declared Content-Type. Returns "" when
// neither helps, leaving detection to content sniffing.
func partMediaType(fh *multipart.FileHeader) string {
	if mt, ok := extract.TypeByExtension(fh.Filename); ok {
		return mt
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		return ""
	}
	return ct
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
