package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// PlainFormatter formats notifications as indented plain text.
type PlainFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewPlainFormatter creates a new plain text formatter.
func NewPlainFormatter(opts FormatterOptions) *PlainFormatter {
	f := &PlainFormatter{opts: opts}
	if opts.Template != "" {
		tmpl, err := template.New("plain").Funcs(templateFuncs()).Parse(opts.Template)
		if err == nil {
			f.template = tmpl
		}
	}
	return f
}

// Format writes notifications as plain text.
func (f *PlainFormatter) Format(w io.Writer, notifications []model.Notification) error {
	for i := range notifications {
		if err := f.formatNotification(w, i+1, &notifications[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *PlainFormatter) formatNotification(w io.Writer, index int, n *model.Notification) error {
	if f.template != nil {
		return f.template.Execute(w, newTemplateData(index, n))
	}

	var sb strings.Builder
	if f.opts.ShowIndex {
		fmt.Fprintf(&sb, "[%d] ", index)
	}
	if f.opts.ShowKind && n.Kind != "" {
		fmt.Fprintf(&sb, "<%s> ", n.Kind)
	}
	sb.WriteString(n.Title)
	if f.opts.ShowTime {
		fmt.Fprintf(&sb, " (%s)", relativeTime(n.Timestamp))
	}
	if status := n.Status(); status != "shown" {
		fmt.Fprintf(&sb, " [%s]", status)
	}
	sb.WriteString("\n")

	if body := sanitizeBody(n.Body, f.opts.BodyMaxLen, f.opts.IncludeNewline); body != "" {
		sb.WriteString("    " + body + "\n")
	}
	if n.URL != "" {
		sb.WriteString("    " + n.URL + "\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// FormatField returns a single field of a notification.
func FormatField(n *model.Notification, field string) string {
	switch strings.ToLower(field) {
	case "id":
		return n.ID
	case "kind":
		return string(n.Kind)
	case "title", "summary":
		return n.Title
	case "body":
		return n.Body
	case "tag":
		return n.Tag
	case "url":
		return n.URL
	case "room", "room_id":
		return n.RoomID.String()
	case "icon":
		return n.Icon
	case "status":
		return n.Status()
	case "all", "full":
		return n.Title + "\n" + n.Body
	default:
		return n.Title
	}
}
