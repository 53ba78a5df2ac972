// CLAUDE:SUMMARY Core pipeline engine that dispatches extraction by media type (pdf, office, html, image, text).
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Options configures a Pipeline. The zero value is usable.
type Options struct {
	// MaxFileSize is the maximum input size to process (default: 100 MB).
	MaxFileSize int64

	// TesseractBin overrides the OCR binary name (default: "tesseract").
	TesseractBin string

	// PandocBin overrides the converter binary name (default: "pandoc").
	PandocBin string

	// Logger for debug/error messages.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = 100 * 1024 * 1024
	}
	if o.PandocBin == "" {
		o.PandocBin = "pandoc"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Pipeline dispatches extraction by media type to the matching backend.
type Pipeline struct {
	opts      Options
	logger    *slog.Logger
	tess      *Tesseract
	pandocBin string
	converter *converter.Converter
	sanitizer *bluemonday.Policy
}

// New creates a Pipeline with the given options.
func New(opts Options) *Pipeline {
	opts.defaults()
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowTables()
	return &Pipeline{
		opts:      opts,
		logger:    opts.Logger,
		tess:      NewTesseract(opts.TesseractBin),
		pandocBin: opts.PandocBin,
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		sanitizer: sanitizer,
	}
}

// Tesseract exposes the OCR capability; tests use it to reset the cached
// version probe.
func (p *Pipeline) Tesseract() *Tesseract { return p.tess }

// ExtractBytes extracts in-memory content. An empty mediaType is resolved
// by content sniffing.
func (p *Pipeline) ExtractBytes(ctx context.Context, data []byte, mediaType string, cfg Config) (*Result, error) {
	cfg.defaults()

	if int64(len(data)) > p.opts.MaxFileSize {
		return nil, &ErrValidation{Reason: fmt.Sprintf("file too large: %d bytes (max %d)", len(data), p.opts.MaxFileSize)}
	}

	mt, charset := normalizeMediaType(mediaType)
	if mt == "" {
		mt = p.DetectBytes(data)
	}
	k, ok := mediaTypes[mt]
	if !ok {
		return nil, unsupported(mt, mediaType)
	}

	p.logger.Debug("extracting", "media_type", mt, "size", len(data))

	switch k {
	case kindText:
		return extractText(data, mt, charset), nil
	case kindHTML:
		return p.extractHTML(data)
	case kindPDF:
		return p.extractPDFBytes(ctx, data, cfg)
	case kindImage:
		return p.tess.Image(ctx, data, cfg)
	case kindPandoc:
		return p.extractPandocBytes(ctx, data, mt)
	}
	return nil, unsupported(mt, mediaType)
}

// ExtractFile extracts a file on disk. An empty mediaType is resolved from
// the extension, then by content sniffing.
func (p *Pipeline) ExtractFile(ctx context.Context, path, mediaType string, cfg Config) (*Result, error) {
	cfg.defaults()

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, &ErrValidation{Reason: fmt.Sprintf("The file does not exist: %s", path)}
	}
	if info.Size() > p.opts.MaxFileSize {
		return nil, &ErrValidation{Reason: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), p.opts.MaxFileSize)}
	}

	mt, charset := normalizeMediaType(mediaType)
	if mt == "" {
		if detected, derr := p.DetectFile(path); derr == nil {
			mt = detected
		}
	}
	k, ok := mediaTypes[mt]
	if !ok {
		return nil, unsupported(mt, mediaType)
	}

	p.logger.Debug("extracting", "media_type", mt, "path", path)

	switch k {
	case kindText:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ErrValidation{Reason: fmt.Sprintf("The file does not exist: %s", path)}
		}
		return extractText(data, mt, charset), nil
	case kindHTML:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ErrValidation{Reason: fmt.Sprintf("The file does not exist: %s", path)}
		}
		return p.extractHTML(data)
	case kindPDF:
		return p.extractPDFFile(ctx, path, cfg)
	case kindImage:
		return p.tess.File(ctx, path, cfg)
	case kindPandoc:
		return p.extractPandocFile(ctx, path, mt)
	}
	return nil, unsupported(mt, mediaType)
}

// Outcome pairs a result with its error for the channel-returning variants.
type Outcome struct {
	Result *Result
	Err    error
}

// ExtractBytesAsync runs ExtractBytes in a goroutine. The channel receives
// exactly one Outcome and is then closed.
func (p *Pipeline) ExtractBytesAsync(ctx context.Context, data []byte, mediaType string, cfg Config) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		res, err := p.ExtractBytes(ctx, data, mediaType, cfg)
		ch <- Outcome{Result: res, Err: err}
		close(ch)
	}()
	return ch
}

// ExtractFileAsync runs ExtractFile in a goroutine. The channel receives
// exactly one Outcome and is then closed.
func (p *Pipeline) ExtractFileAsync(ctx context.Context, path, mediaType string, cfg Config) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		res, err := p.ExtractFile(ctx, path, mediaType, cfg)
		ch <- Outcome{Result: res, Err: err}
		close(ch)
	}()
	return ch
}

func unsupported(normalized, declared string) *ErrValidation {
	label := normalized
	if label == "" {
		label = declared
	}
	if label == "" {
		return &ErrValidation{Reason: "Unsupported mime type"}
	}
	return &ErrValidation{Reason: fmt.Sprintf("Unsupported mime type: %s", label)}
}
