// CLAUDE:SUMMARY Scores PDF text-layer quality to decide OCR fallback: printable ratio, wordlike ratio, density.
// CLAUDE:EXPORTS scoreTextLayer, needsOCR, printableRatio, wordlikeRatio
package extract

import (
	"strings"
	"unicode"
)

// quality captures metrics about a PDF text layer, used to decide whether
// the document needs the OCR route.
type quality struct {
	pageCount      int
	charsPerPage   float64
	printableRatio float64
	wordlikeRatio  float64
	hasImages      bool
}

func scoreTextLayer(text string, pageCount int, hasImages bool) quality {
	q := quality{
		pageCount:      pageCount,
		printableRatio: printableRatio(text),
		wordlikeRatio:  wordlikeRatio(text),
		hasImages:      hasImages,
	}
	if pageCount > 0 {
		q.charsPerPage = float64(len([]rune(text))) / float64(pageCount)
	}
	return q
}

// needsOCR reports whether the text layer is too thin or too corrupted to
// trust: near-empty pages alongside embedded images mean a scanned
// document, and a low printable ratio means garbage glyph mappings.
func (q quality) needsOCR() bool {
	return (q.charsPerPage < 50 && q.hasImages) || q.printableRatio < 0.85
}

// printableRatio returns the share of printable characters in text.
// PUA code points, U+FFFD, and control characters other than whitespace
// count against it.
func printableRatio(text string) float64 {
	if len(text) == 0 {
		return 1.0
	}
	total := 0
	printable := 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	// Private Use Area
	if r >= 0xE000 && r <= 0xF8FF {
		return true
	}
	// Replacement character
	if r == 0xFFFD {
		return true
	}
	// Control chars except whitespace
	if r < 0x0020 && r != '\n' && r != '\r' && r != '\t' {
		return true
	}
	return false
}

// wordlikeRatio returns the ratio of word-like tokens (length 2-15) to all
// tokens.
func wordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		n := len([]rune(f))
		if n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}
