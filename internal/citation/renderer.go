package citation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	xhtml "golang.org/x/net/html"
)

// RenderInput is everything a message render depends on
type RenderInput struct {
	MessageID string
	Text      string
	Citations []domain.Citation
	// Hover is the active hover key, nil when no popover is shown.
	Hover *domain.HoverKey
}

// Reference describes one marker occurrence in a rendered message
type Reference struct {
	Instance int              `json:"instance"`
	Number   int              `json:"number"`
	Text     string           `json:"text"`
	Citation *domain.Citation `json:"citation,omitempty"`
	Key      *domain.HoverKey `json:"key,omitempty"`
	Active   bool             `json:"active"`
}

// Rendered is the displayable form of a message
type Rendered struct {
	HTML       string      `json:"html"`
	References []Reference `json:"references"`
}

// Renderer renders Markdown answers with interactive citation references
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a renderer with GFM and raw HTML passthrough enabled
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithUnsafe(),
			),
		),
	}
}

// Render rewrites the markers in in.Text, renders the Markdown and resolves
// each marker against in.Citations. Identical inputs give identical output.
func (r *Renderer) Render(in RenderInput) (*Rendered, error) {
	rewritten, _ := rewrite(r.md.Parser(), in.Text)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(rewritten), &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	out, refs, err := resolveMarkers(buf.Bytes(), in)
	if err != nil {
		return nil, err
	}
	return &Rendered{HTML: out, References: refs}, nil
}

func resolveMarkers(doc []byte, in RenderInput) (string, []Reference, error) {
	var out strings.Builder
	refs := []Reference{}

	z := xhtml.NewTokenizer(bytes.NewReader(doc))
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return out.String(), refs, nil
			}
			return "", nil, fmt.Errorf("failed to scan rendered html: %w", z.Err())
		}

		raw := append([]byte(nil), z.Raw()...)
		if tt != xhtml.StartTagToken {
			out.Write(raw)
			continue
		}

		instance, ok := markerInstance(z)
		if !ok {
			out.Write(raw)
			continue
		}

		visible := markerText(z)
		ref := resolve(in, instance, visible)
		writeReference(&out, ref, in.MessageID)
		refs = append(refs, ref)
	}
}

// markerInstance reports the instance tag when the current token opens a
// rewritten marker.
func markerInstance(z *xhtml.Tokenizer) (int, bool) {
	name, hasAttr := z.TagName()
	if string(name) != "sup" || !hasAttr {
		return 0, false
	}
	for {
		key, val, more := z.TagAttr()
		if string(key) == markerAttr {
			n, err := strconv.Atoi(string(val))
			return n, err == nil
		}
		if !more {
			return 0, false
		}
	}
}

// markerText consumes tokens up to the closing </sup> and returns the text.
func markerText(z *xhtml.Tokenizer) string {
	var text strings.Builder
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return text.String()
		case xhtml.TextToken:
			text.Write(z.Text())
		case xhtml.EndTagToken:
			if name, _ := z.TagName(); string(name) == "sup" {
				return text.String()
			}
		}
	}
}

func resolve(in RenderInput, instance int, visible string) Reference {
	ref := Reference{Instance: instance, Text: visible}

	digits := strings.TrimSuffix(strings.TrimSpace(visible), ".")
	digits = strings.TrimSuffix(strings.TrimPrefix(digits, "["), "]")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return ref
	}
	ref.Number = n

	if n < 1 || n > len(in.Citations) {
		return ref
	}
	c := in.Citations[n-1]
	ref.Citation = &c
	ref.Key = &domain.HoverKey{
		MessageID:  in.MessageID,
		CitationID: c.ID,
		Number:     n,
		Instance:   instance,
	}
	ref.Active = in.Hover != nil && *in.Hover == *ref.Key
	return ref
}

func writeReference(out *strings.Builder, ref Reference, messageID string) {
	if ref.Citation == nil {
		out.WriteString(xhtml.EscapeString(ref.Text))
		return
	}

	fmt.Fprintf(out,
		`<sup class="citation" data-message-id="%s" data-citation-id="%s" data-number="%d" data-instance="%d">`,
		xhtml.EscapeString(messageID), xhtml.EscapeString(ref.Citation.ID), ref.Number, ref.Instance)
	fmt.Fprintf(out, `<span class="citation-ref">%d</span>`, ref.Number)
	if ref.Active {
		out.WriteString(`<span class="citation-popover" role="tooltip">`)
		out.WriteString(`<span class="citation-document">`)
		out.WriteString(xhtml.EscapeString(ref.Citation.DocumentName))
		out.WriteString(`</span>`)
		if ref.Citation.PageNumber != nil {
			fmt.Fprintf(out, `<span class="citation-page">Page %d</span>`, *ref.Citation.PageNumber)
		}
		out.WriteString(`</span>`)
	}
	out.WriteString(`</sup>`)
}
