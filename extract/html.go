// CLAUDE:SUMMARY HTML extractor: bluemonday sanitization, html-to-markdown conversion, title metadata.
package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// extractHTML converts an HTML document to markdown. Head metadata is read
// from the raw tree before sanitization strips it.
func (p *Pipeline) extractHTML(data []byte) (*Result, error) {
	var meta Metadata
	if doc, err := html.Parse(bytes.NewReader(data)); err == nil {
		meta = htmlMetadata(doc)
	}

	clean := p.sanitizer.SanitizeBytes(data)
	md, err := p.converter.ConvertString(string(clean))
	if err != nil {
		return nil, &ErrParsing{Format: "html", Reason: "could not convert HTML to markdown", Cause: err}
	}

	return &Result{
		Content:  strings.TrimSpace(md),
		MimeType: MimeMarkdown,
		Metadata: meta,
	}, nil
}

// htmlMetadata walks the document head for title, meta tags, and language.
func htmlMetadata(doc *html.Node) Metadata {
	var m Metadata

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if m.Title == "" && n.FirstChild != nil {
					m.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.Html:
				if lang := attrVal(n, "lang"); lang != "" {
					m.Languages = []string{lang}
				}
			case atom.Meta:
				content := attrVal(n, "content")
				if content == "" {
					break
				}
				switch strings.ToLower(attrVal(n, "name")) {
				case "author":
					m.Authors = append(m.Authors, content)
				case "description":
					m.Description = content
				case "keywords":
					m.Keywords = splitKeywords(content)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return m
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
