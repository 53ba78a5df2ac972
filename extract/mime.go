// CLAUDE:SUMMARY Media type registry: mimetype content sniffing, extension mapping, supported-type queries.
package extract

import (
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Media types produced by backends.
const (
	MimePlainText = "text/plain"
	MimeMarkdown  = "text/markdown"
)

// kind identifies which backend claims a media type. The set is closed:
// dispatch is driven by the static table below, never by registration.
type kind int

const (
	kindText kind = iota
	kindPDF
	kindHTML
	kindImage
	kindPandoc
)

// mediaTypes is the dispatch table. Keys are media types with parameters
// stripped.
var mediaTypes = map[string]kind{
	"text/plain":      kindText,
	"text/markdown":   kindText,
	"text/x-markdown": kindText,

	"text/html":             kindHTML,
	"application/xhtml+xml": kindHTML,

	"application/pdf": kindPDF,

	"image/png":  kindImage,
	"image/jpeg": kindImage,
	"image/tiff": kindImage,
	"image/bmp":  kindImage,
	"image/gif":  kindImage,
	"image/webp": kindImage,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": kindPandoc,
	"application/vnd.oasis.opendocument.text":                                 kindPandoc,

	"application/rtf":         kindPandoc,
	"text/rtf":                kindPandoc,
	"application/epub+zip":    kindPandoc,
	"text/x-rst":              kindPandoc,
	"text/org":                kindPandoc,
	"application/x-latex":     kindPandoc,
	"application/docbook+xml": kindPandoc,
}

// pandocFormats maps office/markup media types to pandoc reader names.
var pandocFormats = map[string]string{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.oasis.opendocument.text":                                 "odt",

	"application/rtf":         "rtf",
	"text/rtf":                "rtf",
	"application/epub+zip":    "epub",
	"text/x-rst":              "rst",
	"text/org":                "org",
	"application/x-latex":     "latex",
	"application/docbook+xml": "docbook",
}

// extMediaTypes resolves well-known extensions before content sniffing.
// Extension wins for zip-container formats (docx, odt, epub) that sniff as
// application/zip.
var extMediaTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".xhtml":    "application/xhtml+xml",
	".pdf":      "application/pdf",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".tif":      "image/tiff",
	".tiff":     "image/tiff",
	".bmp":      "image/bmp",
	".gif":      "image/gif",
	".webp":     "image/webp",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":      "application/vnd.oasis.opendocument.text",
	".rtf":      "application/rtf",
	".epub":     "application/epub+zip",
	".rst":      "text/x-rst",
	".org":      "text/org",
	".tex":      "application/x-latex",
}

// normalizeMediaType strips parameters and lowercases the type. The charset
// parameter, when present, is returned for the plain-text decoder.
func normalizeMediaType(mt string) (mediaType, charset string) {
	mt = strings.TrimSpace(mt)
	if mt == "" {
		return "", ""
	}
	parsed, params, err := mime.ParseMediaType(mt)
	if err != nil {
		// Tolerate bare types with stray parameters mime rejects.
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		return strings.ToLower(strings.TrimSpace(mt)), ""
	}
	return parsed, params["charset"]
}

// TypeByExtension resolves a media type from a file name's extension alone.
// Used where only a name is available (e.g. multipart uploads).
func TypeByExtension(name string) (string, bool) {
	mt, ok := extMediaTypes[strings.ToLower(filepath.Ext(name))]
	return mt, ok
}

// DetectFile resolves the media type of a file from its extension, falling
// back to content sniffing. Returns "" when neither strategy recognizes the
// file.
func (p *Pipeline) DetectFile(path string) (string, error) {
	if mt, ok := extMediaTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt, nil
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	mt, _ := normalizeMediaType(mtype.String())
	return mt, nil
}

// DetectBytes resolves the media type of in-memory content by sniffing.
func (p *Pipeline) DetectBytes(data []byte) string {
	mt, _ := normalizeMediaType(mimetype.Detect(data).String())
	return mt
}

// SupportedTypes returns the closed set of media types the dispatcher
// accepts, sorted.
func SupportedTypes() []string {
	out := make([]string, 0, len(mediaTypes))
	for mt := range mediaTypes {
		out = append(out, mt)
	}
	sort.Strings(out)
	return out
}
