// Package report renders a ranked ArticleItem list plus a narrative
// overview into the HTML/plaintext pair persisted on types.Report,
// grouped by source. It composes markup by hand with strings.Builder,
// matching the manual string-building approach of the original
// implementation this behavior was ported from, rather than reaching
// for a templating engine neither the original nor the teacher used.
package report

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/policywatch/collector/internal/types"
)

var contentKindLabel = map[types.ContentKind]string{
	types.ContentKindPolicy: "Policy",
	types.ContentKindNews:   "News",
	types.ContentKindNotice: "Notice",
	types.ContentKindFile:   "File",
}

func labelFor(k types.ContentKind) string {
	if l, ok := contentKindLabel[k]; ok {
		return l
	}
	return "Item"
}

// Input is everything Render needs for one source's task-level report.
type Input struct {
	SourceName  string
	Overview    string
	Items       []types.ArticleItem
	GeneratedAt time.Time
}

// Render produces the HTML and plaintext bodies for a Report, in ranked
// order, grouped under a single source heading (a task always belongs
// to exactly one source, per §3).
func Render(in Input) (htmlBody, plainText string) {
	title := fmt.Sprintf("%s update digest %s", in.SourceName, in.GeneratedAt.Format("2006-01-02"))

	var h strings.Builder
	fmt.Fprintf(&h, "<h1>%s</h1>\n", html.EscapeString(title))

	var p strings.Builder
	p.WriteString(title + "\n")
	p.WriteString(strings.Repeat("=", len(title)) + "\n")

	if strings.TrimSpace(in.Overview) != "" {
		h.WriteString(`<div style="margin:20px 0;padding:20px;background:#f0f7ff;border-radius:8px;border-left:4px solid #1a56db;">`)
		h.WriteString(`<h2 style="margin:0 0 12px 0;color:#1a56db;font-size:18px;">Overview</h2>`)
		h.WriteString(overviewToHTML(in.Overview))
		h.WriteString("</div>\n<hr>\n")

		p.WriteString("\n[Overview]\n")
		p.WriteString(in.Overview)
		p.WriteString("\n" + strings.Repeat("-", 40) + "\n")
	}

	fmt.Fprintf(&h, `<h2 style="border-left:4px solid #1a56db;padding-left:12px;">%s &middot; %d updates</h2>`+"\n",
		html.EscapeString(in.SourceName), len(in.Items))
	fmt.Fprintf(&p, "\n== %s (%d updates) ==\n\n", in.SourceName, len(in.Items))

	for i, item := range in.Items {
		renderItemHTML(&h, item)
		renderItemPlain(&p, i+1, item)
	}

	return h.String(), p.String()
}

func renderItemHTML(h *strings.Builder, item types.ArticleItem) {
	h.WriteString(`<div style="margin:16px 0;padding:12px;border:1px solid #e5e7eb;border-radius:8px;">`)
	fmt.Fprintf(h, `<p style="margin:0;"><strong>[%s] %s</strong></p>`+"\n", labelFor(item.ContentKind), html.EscapeString(item.Title))
	if item.PublishedDate != nil {
		fmt.Fprintf(h, `<p style="margin:4px 0;color:#6b7280;font-size:13px;">%s</p>`+"\n", item.PublishedDate.Format("2006-01-02"))
	}
	if item.Summary != "" {
		fmt.Fprintf(h, `<p style="margin:8px 0 0 0;color:#374151;">%s</p>`+"\n", html.EscapeString(item.Summary))
	}
	fmt.Fprintf(h, `<p style="margin:8px 0 0 0;"><a href="%s">%s</a></p>`+"\n", html.EscapeString(item.URL), html.EscapeString(item.URL))
	h.WriteString("</div>\n")
}

func renderItemPlain(p *strings.Builder, rank int, item types.ArticleItem) {
	fmt.Fprintf(p, "%d. [%s] %s\n", rank, labelFor(item.ContentKind), item.Title)
	if item.PublishedDate != nil {
		fmt.Fprintf(p, "   %s\n", item.PublishedDate.Format("2006-01-02"))
	}
	if item.Summary != "" {
		fmt.Fprintf(p, "   %s\n", item.Summary)
	}
	fmt.Fprintf(p, "   %s\n\n", item.URL)
}

var (
	boldPattern    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	headingPattern = regexp.MustCompile(`^#{1,3}\s+(.+)$`)
	bulletPattern  = regexp.MustCompile(`^[-*]\s+(.+)$`)
)

// overviewToHTML converts the narrative overview's lightweight markdown
// (## headings, **bold**, - bullets, blank-line paragraphs) into styled
// HTML, mirroring the source-language original's own converter.
func overviewToHTML(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	text = boldPattern.ReplaceAllString(text, "<strong>$1</strong>")

	const pStyle = `margin:6px 0 14px 0;line-height:1.8;color:#374151;`
	const headingStyle = `margin:16px 0 4px 0;font-size:15px;font-weight:600;color:#1e40af;border-bottom:1px solid #e5e7eb;padding-bottom:4px;`
	const liStyle = `margin:2px 0;line-height:1.7;color:#374151;`
	const ulStyle = `margin:6px 0 14px 0;padding-left:20px;color:#374151;`

	var out []string
	var body []string
	var list []string

	flushBody := func() {
		if len(body) > 0 {
			out = append(out, fmt.Sprintf(`<p style="%s">%s</p>`, pStyle, strings.TrimSpace(strings.Join(body, " "))))
			body = nil
		}
	}
	flushList := func() {
		if len(list) > 0 {
			var items strings.Builder
			for _, li := range list {
				fmt.Fprintf(&items, `<li style="%s">%s</li>`, liStyle, li)
			}
			out = append(out, fmt.Sprintf(`<ul style="%s">%s</ul>`, ulStyle, items.String()))
			list = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			flushBody()
			flushList()
			continue
		}
		if m := headingPattern.FindStringSubmatch(stripped); m != nil {
			flushBody()
			flushList()
			out = append(out, fmt.Sprintf(`<h3 style="%s">%s</h3>`, headingStyle, m[1]))
			continue
		}
		if m := bulletPattern.FindStringSubmatch(stripped); m != nil {
			flushBody()
			list = append(list, m[1])
			continue
		}
		flushList()
		body = append(body, stripped)
	}
	flushBody()
	flushList()

	if len(out) == 0 {
		return fmt.Sprintf(`<p style="%s">%s</p>`, pStyle, text)
	}
	return strings.Join(out, "\n")
}
