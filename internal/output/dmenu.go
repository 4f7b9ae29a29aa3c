package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// DmenuFormatter formats notifications for dmenu/rofi/fuzzel, one per line.
type DmenuFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewDmenuFormatter creates a new dmenu formatter. An invalid template
// falls back to the default line format.
func NewDmenuFormatter(opts FormatterOptions) *DmenuFormatter {
	f := &DmenuFormatter{opts: opts}
	if opts.Template != "" {
		tmpl, err := template.New("dmenu").Funcs(templateFuncs()).Parse(opts.Template)
		if err == nil {
			f.template = tmpl
		}
	}
	return f
}

// Format writes notifications in dmenu format.
func (f *DmenuFormatter) Format(w io.Writer, notifications []model.Notification) error {
	for i := range notifications {
		if _, err := fmt.Fprintln(w, f.formatLine(i+1, &notifications[i])); err != nil {
			return err
		}
	}
	return nil
}

func (f *DmenuFormatter) formatLine(index int, n *model.Notification) string {
	if f.template != nil {
		var buf strings.Builder
		if err := f.template.Execute(&buf, newTemplateData(index, n)); err == nil {
			return buf.String()
		}
	}

	// index | time | kind | title: body
	sep := f.opts.Separator
	if sep == "" {
		sep = " | "
	}

	var parts []string
	if f.opts.ShowIndex {
		parts = append(parts, fmt.Sprintf("%d", index))
	}
	if f.opts.ShowTime {
		parts = append(parts, relativeTime(n.Timestamp))
	}
	if f.opts.ShowKind && n.Kind != "" {
		parts = append(parts, string(n.Kind))
	}

	content := n.Title
	if body := sanitizeBody(n.Body, f.opts.BodyMaxLen, f.opts.IncludeNewline); body != "" {
		content += ": " + body
	}
	parts = append(parts, content)

	return strings.Join(parts, sep)
}

// templateData is the value passed to custom templates.
type templateData struct {
	Index        int
	Notification *model.Notification
	RelativeTime string
	Status       string
}

func newTemplateData(index int, n *model.Notification) templateData {
	return templateData{
		Index:        index,
		Notification: n,
		RelativeTime: relativeTime(n.Timestamp),
		Status:       n.Status(),
	}
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"truncate": func(s string, maxLen int) string {
			r := []rune(s)
			if maxLen <= 0 || len(r) <= maxLen {
				return s
			}
			if maxLen <= 3 {
				return string(r[:maxLen])
			}
			return string(r[:maxLen-3]) + "..."
		},
		"reltime": relativeTime,
		"kindIcon": func(kind model.Kind) string {
			switch kind {
			case model.KindChat, model.KindPush:
				return "✉"
			case model.KindPayment:
				return "$"
			case model.KindInternal:
				return "!"
			default:
				return "-"
			}
		},
	}
}

// relativeTime returns a compact age such as "5m" or "2d".
func relativeTime(timestamp int64) string {
	if timestamp == 0 {
		return "unknown"
	}

	d := time.Since(time.Unix(timestamp, 0))
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw", int(d.Hours()/24/7))
	}
}

// sanitizeBody cleans up body text for single-line display.
func sanitizeBody(body string, maxLen int, includeNewline bool) string {
	if includeNewline {
		body = strings.TrimSpace(body)
	} else {
		body = strings.Join(strings.Fields(body), " ")
	}

	r := []rune(body)
	if maxLen > 0 && len(r) > maxLen {
		if maxLen <= 3 {
			return string(r[:maxLen])
		}
		return string(r[:maxLen-3]) + "..."
	}
	return body
}
