// Package linkify splits free-form assistant text into plain and hyperlink
// segments so that clients can render links without interpreting markdown.
package linkify

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// SegmentKind distinguishes plain text from hyperlinks.
type SegmentKind string

const (
	KindText SegmentKind = "text"
	KindLink SegmentKind = "link"
)

// Segment is one renderable piece of text.
type Segment struct {
	Kind SegmentKind `json:"kind"`
	Text string      `json:"text"`
	URL  string      `json:"url,omitempty"`
}

var (
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)
	bareURL      = regexp.MustCompile(`https?://[^\s)]+`)

	policy = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.RequireParseableURLs(true)
	p.RequireNoReferrerOnFullyQualifiedLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Parse converts text into ordered segments. Markdown links are resolved first;
// bare URLs are then searched only inside the remaining plain text.
func Parse(text string) []Segment {
	if text == "" {
		return nil
	}

	segments := make([]Segment, 0, 1)
	cursor := 0
	for _, match := range markdownLink.FindAllStringSubmatchIndex(text, -1) {
		if match[0] > cursor {
			segments = appendBareLinks(segments, text[cursor:match[0]])
		}
		segments = append(segments, Segment{
			Kind: KindLink,
			Text: text[match[2]:match[3]],
			URL:  text[match[4]:match[5]],
		})
		cursor = match[1]
	}
	if cursor < len(text) {
		segments = appendBareLinks(segments, text[cursor:])
	}
	return segments
}

func appendBareLinks(segments []Segment, plain string) []Segment {
	cursor := 0
	for _, match := range bareURL.FindAllStringIndex(plain, -1) {
		if match[0] > cursor {
			segments = append(segments, Segment{Kind: KindText, Text: plain[cursor:match[0]]})
		}
		url := plain[match[0]:match[1]]
		segments = append(segments, Segment{Kind: KindLink, Text: url, URL: url})
		cursor = match[1]
	}
	if cursor < len(plain) {
		segments = append(segments, Segment{Kind: KindText, Text: plain[cursor:]})
	}
	return segments
}

// HasLinks reports whether any segment is a hyperlink.
func HasLinks(segments []Segment) bool {
	for _, segment := range segments {
		if segment.Kind == KindLink {
			return true
		}
	}
	return false
}

// RenderHTML renders segments as sanitised HTML with links opening in a new tab.
func RenderHTML(segments []Segment) string {
	var builder strings.Builder
	for _, segment := range segments {
		switch segment.Kind {
		case KindLink:
			builder.WriteString(`<a href="`)
			builder.WriteString(html.EscapeString(segment.URL))
			builder.WriteString(`">`)
			builder.WriteString(html.EscapeString(segment.Text))
			builder.WriteString(`</a>`)
		default:
			builder.WriteString(html.EscapeString(segment.Text))
		}
	}
	return policy.Sanitize(builder.String())
}
