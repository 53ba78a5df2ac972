// CLAUDE:SUMMARY Defines Config, Result, Metadata, and PageSegMode types for the extract pipeline.
// Package extract converts heterogeneous document formats (PDF, images,
// office documents, HTML, plain text) into text and metadata.
//
// Formats are dispatched by media type to one of five backends. The OCR
// backend shells out to tesseract; the office backend shells out to pandoc.
// Callers that cannot tolerate a hung subprocess should run extractions
// through the isolate package rather than calling the Pipeline directly.
//
// Usage:
//
//	pipe := extract.New(extract.Options{})
//	res, err := pipe.ExtractFile(ctx, "/path/to/doc.pdf", "application/pdf", extract.Config{})
//	fmt.Println(res.Content)
package extract

import (
	"fmt"
	"strconv"
	"strings"
)

// PageSegMode selects how the OCR engine partitions page layout before
// recognition. Values match tesseract's --psm argument.
type PageSegMode int

const (
	PSMOSDOnly             PageSegMode = 0  // orientation and script detection only
	PSMAutoOSD             PageSegMode = 1  // automatic segmentation with OSD
	PSMAutoOnly            PageSegMode = 2  // automatic segmentation, no OSD
	PSMAuto                PageSegMode = 3  // fully automatic segmentation (default)
	PSMSingleColumn        PageSegMode = 4  // assume a single column of text
	PSMSingleBlockVertical PageSegMode = 5  // single block of vertically aligned text
	PSMSingleBlock         PageSegMode = 6  // single uniform block of text
	PSMSingleLine          PageSegMode = 7  // single text line
	PSMSingleWord          PageSegMode = 8  // single word
	PSMCircleWord          PageSegMode = 9  // single word in a circle
	PSMSingleChar          PageSegMode = 10 // single character
)

// ParsePageSegMode resolves a mode from its short name ("auto",
// "single_block", …) or its numeric value.
func ParsePageSegMode(s string) (PageSegMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "osd_only":
		return PSMOSDOnly, nil
	case "auto_osd":
		return PSMAutoOSD, nil
	case "auto_only":
		return PSMAutoOnly, nil
	case "auto", "":
		return PSMAuto, nil
	case "single_column":
		return PSMSingleColumn, nil
	case "single_block_vertical":
		return PSMSingleBlockVertical, nil
	case "single_block":
		return PSMSingleBlock, nil
	case "single_line":
		return PSMSingleLine, nil
	case "single_word":
		return PSMSingleWord, nil
	case "circle_word":
		return PSMCircleWord, nil
	case "single_char":
		return PSMSingleChar, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 10 {
		return 0, fmt.Errorf("extract: unknown page segmentation mode %q", s)
	}
	return PageSegMode(n), nil
}

// Config carries per-extraction options. The zero value is usable;
// defaults() fills in language and process count.
type Config struct {
	// ForceOCR routes PDFs through OCR even when a text layer exists.
	ForceOCR bool `json:"force_ocr" yaml:"force_ocr"`

	// Language is the OCR language code (default "eng").
	Language string `json:"language" yaml:"language"`

	// MaxProcesses bounds per-page OCR parallelism (default 1, minimum 1).
	MaxProcesses int `json:"max_processes" yaml:"max_processes"`

	// PSM is the tesseract page segmentation mode (default PSMAuto).
	PSM PageSegMode `json:"psm" yaml:"psm"`
}

func (c *Config) defaults() {
	if c.Language == "" {
		c.Language = "eng"
	}
	if c.MaxProcesses < 1 {
		c.MaxProcesses = 1
	}
	if c.PSM == 0 {
		// Zero value means unset; orientation-only probing (mode 0) yields
		// no text and has no place in an extraction call.
		c.PSM = PSMAuto
	}
}

// DefaultConfig returns the standard extraction options.
func DefaultConfig() Config {
	c := Config{}
	c.defaults()
	return c
}

// Result is the outcome of extracting one document. Content is always valid
// text; backends transcode raw bytes before returning.
type Result struct {
	Content  string   `json:"content"`
	MimeType string   `json:"mime_type"`
	Metadata Metadata `json:"metadata"`
}

// Metadata holds the known document properties. Every field is optional and
// omitted from serialization when empty: a present field always carries a
// meaningful value, never a null or empty placeholder.
type Metadata struct {
	Title        string   `json:"title,omitempty"`
	Subtitle     string   `json:"subtitle,omitempty"`
	Subject      string   `json:"subject,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Description  string   `json:"description,omitempty"`
	Authors      []string `json:"authors,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
	CreatedBy    string   `json:"created_by,omitempty"`
	ModifiedAt   string   `json:"modified_at,omitempty"`
	ModifiedBy   string   `json:"modified_by,omitempty"`
	Publisher    string   `json:"publisher,omitempty"`
	Organization string   `json:"organization,omitempty"`
	Copyright    string   `json:"copyright,omitempty"`
	License      string   `json:"license,omitempty"`
	Identifier   string   `json:"identifier,omitempty"`
	Status       string   `json:"status,omitempty"`
	Version      string   `json:"version,omitempty"`
	Comments     string   `json:"comments,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Citations    []string `json:"citations,omitempty"`
	References   []string `json:"references,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	Fonts        []string `json:"fonts,omitempty"`
	Width        int      `json:"width,omitempty"`
	Height       int      `json:"height,omitempty"`
	PageCount    int      `json:"page_count,omitempty"`
}

// IsZero reports whether no metadata field is populated.
func (m Metadata) IsZero() bool {
	return m.Title == "" && m.Subtitle == "" && m.Subject == "" &&
		m.Summary == "" && m.Description == "" && len(m.Authors) == 0 &&
		m.CreatedAt == "" && m.CreatedBy == "" && m.ModifiedAt == "" &&
		m.ModifiedBy == "" && m.Publisher == "" && m.Organization == "" &&
		m.Copyright == "" && m.License == "" && m.Identifier == "" &&
		m.Status == "" && m.Version == "" && m.Comments == "" &&
		len(m.Keywords) == 0 && len(m.Categories) == 0 &&
		len(m.Citations) == 0 && len(m.References) == 0 &&
		len(m.Languages) == 0 && len(m.Fonts) == 0 &&
		m.Width == 0 && m.Height == 0 && m.PageCount == 0
}
