// Package citation turns bracketed reference markers in answer text into
// addressable citation references and renders the Markdown around them.
package citation

import (
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// markerAttr is the attribute carrying the occurrence instance of a rewritten marker.
const markerAttr = "data-citation-instance"

var defaultMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Rewrite replaces every marker of the form [N] or [N]. with a <sup> element
// tagged with its 1-based occurrence instance. Only plain text is touched:
// code spans, code blocks, raw HTML, links and link reference definitions
// keep their markers. It returns the rewritten text and the number of markers.
func Rewrite(source string) (string, int) {
	return rewrite(defaultMarkdown.Parser(), source)
}

// span is a half-open byte range of the source
type span struct {
	start, stop int
}

func rewrite(p parser.Parser, source string) (string, int) {
	src := []byte(source)
	doc := p.Parse(text.NewReader(src))

	var out strings.Builder
	out.Grow(len(source))

	instance := 0
	written := 0
	for _, s := range textSpans(doc, len(src)) {
		i := s.start
		for i < s.stop {
			c := source[i]
			switch {
			case c == '\\' && i+1 < s.stop:
				i += 2
			case c == '[':
				n, ok := matchMarker(source[:s.stop], i)
				if !ok {
					i++
					continue
				}
				instance++
				out.WriteString(source[written:i])
				writeMarker(&out, source[i:i+n], instance)
				i += n
				written = i
			default:
				i++
			}
		}
	}
	out.WriteString(source[written:])
	return out.String(), instance
}

// textSpans returns the source ranges of plain text nodes, sorted and with
// touching ranges merged. goldmark splits text around brackets it tried to
// parse as links, so a marker can cover several adjacent nodes.
func textSpans(doc ast.Node, size int) []span {
	var spans []span
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.CodeSpan, *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock,
			*ast.RawHTML, *ast.Link, *ast.AutoLink, *ast.Image:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			seg := node.Segment
			if seg.Padding == 0 && seg.Start < seg.Stop && seg.Stop <= size {
				spans = append(spans, span{seg.Start, seg.Stop})
			}
		}
		return ast.WalkContinue, nil
	})

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:0]
	for _, s := range spans {
		if last := len(merged) - 1; last >= 0 && s.start <= merged[last].stop {
			if s.stop > merged[last].stop {
				merged[last].stop = s.stop
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// matchMarker reports the length of the marker starting at line[i].
func matchMarker(line string, i int) (int, bool) {
	j := i + 1
	for j < len(line) && line[j] >= '0' && line[j] <= '9' {
		j++
	}
	if j == i+1 || j >= len(line) || line[j] != ']' {
		return 0, false
	}
	j++
	if j < len(line) && line[j] == '(' {
		return 0, false
	}
	if j < len(line) && line[j] == '.' {
		j++
	}
	return j - i, true
}

// writeMarker writes the <sup> element. Brackets are written as character
// references so Markdown never reads the marker as a link.
func writeMarker(out *strings.Builder, marker string, instance int) {
	out.WriteString(`<sup `)
	out.WriteString(markerAttr)
	out.WriteString(`="`)
	out.WriteString(strconv.Itoa(instance))
	out.WriteString(`">`)
	for i := 0; i < len(marker); i++ {
		switch marker[i] {
		case '[':
			out.WriteString("&#91;")
		case ']':
			out.WriteString("&#93;")
		default:
			out.WriteByte(marker[i])
		}
	}
	out.WriteString(`</sup>`)
}
