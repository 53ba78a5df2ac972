// CLAUDE:SUMMARY PDF text extractor using pdfcpu: page-aware extraction with OCR fallback for scanned pages.
// CLAUDE:DEPENDS extract/quality.go, extract/tesseract.go
// CLAUDE:EXPORTS extractPDFFile, extractPDFBytes
package extract

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/sync/errgroup"
)

// extractPDFFile extracts a PDF through the text layer, falling back to
// per-page OCR when the layer is unusable or ForceOCR is set.
func (p *Pipeline) extractPDFFile(ctx context.Context, path string, cfg Config) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ErrParsing{Format: "pdf", Reason: "could not open PDF document", Cause: err}
	}
	defer f.Close()

	res, needsOCR, err := p.pdfTextLayer(f, cfg)
	if err != nil {
		return nil, err
	}
	if !needsOCR {
		return res, nil
	}
	return p.pdfOCR(ctx, path, cfg, res)
}

// extractPDFBytes is the in-memory entry. The OCR route needs a file on
// disk for page-image export, so a temp copy is written only when taken.
func (p *Pipeline) extractPDFBytes(ctx context.Context, data []byte, cfg Config) (*Result, error) {
	res, needsOCR, err := p.pdfTextLayer(bytes.NewReader(data), cfg)
	if err != nil {
		return nil, err
	}
	if !needsOCR {
		return res, nil
	}

	tmp, err := os.CreateTemp("", "extrait-*.pdf")
	if err != nil {
		return nil, &ErrParsing{Format: "pdf", Reason: "could not stage PDF for OCR", Cause: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, &ErrParsing{Format: "pdf", Reason: "could not stage PDF for OCR", Cause: err}
	}
	tmp.Close()

	return p.pdfOCR(ctx, tmp.Name(), cfg, res)
}

// pdfTextLayer reads the text layer of every page, scores it, and reports
// whether the document should go through OCR.
func (p *Pipeline) pdfTextLayer(rs io.ReadSeeker, cfg Config) (*Result, bool, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(rs, conf)
	if err != nil {
		return nil, false, &ErrParsing{Format: "pdf", Reason: "could not open PDF document", Cause: err}
	}

	hasImages := detectImageStreams(pdfCtx)
	meta := pdfMetadata(pdfCtx)

	var pages []string
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if text := extractPageText(pdfCtx, pageNr); text != "" {
			pages = append(pages, text)
		}
	}
	content := strings.Join(pages, "\n\n")

	q := scoreTextLayer(content, pdfCtx.PageCount, hasImages)
	needsOCR := cfg.ForceOCR || q.needsOCR()
	if needsOCR {
		p.logger.Debug("pdf text layer rejected",
			"force_ocr", cfg.ForceOCR,
			"chars_per_page", q.charsPerPage,
			"printable_ratio", q.printableRatio,
			"wordlike_ratio", q.wordlikeRatio,
			"has_images", q.hasImages)
	}

	return &Result{Content: content, MimeType: MimePlainText, Metadata: meta}, needsOCR, nil
}

// pageImageRe matches pdfcpu's exported image names: <base>_<page>_<name>.<ext>.
var pageImageRe = regexp.MustCompile(`_(\d+)_[^_]*\.(?i:png|jpe?g|tiff?|bmp)$`)

// pdfOCR exports page images and routes each through tesseract, bounded by
// MaxProcesses. textRes is the fast-path result to fall back on when the
// document yields no OCR-able images.
func (p *Pipeline) pdfOCR(ctx context.Context, path string, cfg Config, textRes *Result) (*Result, error) {
	dir, err := os.MkdirTemp("", "extrait-pages-")
	if err != nil {
		return nil, &ErrParsing{Format: "pdf", Reason: "could not stage PDF for OCR", Cause: err}
	}
	defer os.RemoveAll(dir)

	if err := api.ExtractImagesFile(path, dir, nil, nil); err != nil {
		p.logger.Debug("pdf image export failed, keeping text layer", "error", err)
		return textRes, nil
	}

	images, err := collectPageImages(dir)
	if err != nil || len(images) == 0 {
		return textRes, nil
	}

	texts := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxProcesses)
	for i, img := range images {
		g.Go(func() error {
			r, err := p.tess.File(gctx, img.path, cfg)
			if err != nil {
				return err
			}
			texts[i] = r.Content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pages []string
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			pages = append(pages, t)
		}
	}
	if len(pages) == 0 {
		return textRes, nil
	}

	return &Result{
		Content:  strings.Join(pages, "\n\n"),
		MimeType: MimePlainText,
		Metadata: textRes.Metadata,
	}, nil
}

type pageImage struct {
	page int
	path string
}

// collectPageImages lists exported images in page order, skipping formats
// tesseract cannot read.
func collectPageImages(dir string) ([]pageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var images []pageImage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pageImageRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		page, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		images = append(images, pageImage{page: page, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(images, func(i, j int) bool {
		if images[i].page != images[j].page {
			return images[i].page < images[j].page
		}
		return images[i].path < images[j].path
	})
	return images, nil
}

// extractPageText extracts text from a single PDF page via pdfcpu content
// stream.
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}

// detectImageStreams checks if the PDF contains image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	// Fallback: scan the xref table for image subtype objects.
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// pdfMetadata pulls document properties from the Info dictionary.
func pdfMetadata(ctx *model.Context) Metadata {
	m := Metadata{PageCount: ctx.PageCount}
	if ctx.Info == nil {
		return m
	}
	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || d == nil {
		return m
	}

	m.Title = infoString(ctx, d, "Title")
	m.Subject = infoString(ctx, d, "Subject")
	if author := infoString(ctx, d, "Author"); author != "" {
		m.Authors = []string{author}
	}
	if kw := infoString(ctx, d, "Keywords"); kw != "" {
		m.Keywords = splitKeywords(kw)
	}
	m.CreatedBy = infoString(ctx, d, "Creator")
	if m.CreatedBy == "" {
		m.CreatedBy = infoString(ctx, d, "Producer")
	}
	if v := infoString(ctx, d, "CreationDate"); v != "" {
		if t, ok := types.DateTime(v, true); ok {
			m.CreatedAt = t.Format(time.RFC3339)
		}
	}
	if v := infoString(ctx, d, "ModDate"); v != "" {
		if t, ok := types.DateTime(v, true); ok {
			m.ModifiedAt = t.Format(time.RFC3339)
		}
	}
	return m
}

func infoString(ctx *model.Context, d types.Dict, key string) string {
	obj, found := d.Find(key)
	if !found {
		return ""
	}
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return ""
	}
	switch s := obj.(type) {
	case types.StringLiteral:
		v, err := types.StringLiteralToString(s)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	case types.HexLiteral:
		v, err := types.HexLiteralToString(s)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	}
	return ""
}

func splitKeywords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// extractTextFromStream parses PDF content stream operators for text.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		// Tj operator: (text) Tj, and TJ arrays: [(a) -100 (b)] TJ
		if bytes.HasSuffix(line, []byte("Tj")) || bytes.HasSuffix(line, []byte("TJ")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				if text := decodePDFString(m[1]); text != "" {
					sb.WriteString(text)
				}
			}
		}

		// ' operator (move to next line and show text): (text) '
		if bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				if text := decodePDFString(m[1]); text != "" {
					sb.WriteByte('\n')
					sb.WriteString(text)
				}
			}
		}

		// Td/TD operator (text positioning, rendered as a word gap).
		if bytes.HasSuffix(line, []byte("Td")) || bytes.HasSuffix(line, []byte("TD")) {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}

		// T* operator (move to start of next line).
		if bytes.Equal(line, []byte("T*")) {
			sb.WriteByte('\n')
		}
	}

	return cleanPDFText(sb.String())
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\':
				sb.WriteByte('\\')
			case '(':
				sb.WriteByte('(')
			case ')':
				sb.WriteByte(')')
			default:
				// Octal escape (e.g. \040 for space).
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
						i++
						val = val*8 + int(raw[i]-'0')
						if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
							i++
							val = val*8 + int(raw[i]-'0')
						}
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// cleanPDFText normalises whitespace in extracted PDF text.
func cleanPDFText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
