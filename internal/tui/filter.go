package tui

import (
	"strings"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// Query is a parsed search. Terms of the form kind:chat, room:42,
// tag:chat-42 and status:clicked narrow by field; everything else is
// matched against title and body.
type Query struct {
	Kind   string
	Room   string
	Tag    string
	Status string
	Text   string
}

var queryFields = map[string]func(q *Query, v string){
	"kind":   func(q *Query, v string) { q.Kind = v },
	"room":   func(q *Query, v string) { q.Room = v },
	"tag":    func(q *Query, v string) { q.Tag = v },
	"status": func(q *Query, v string) { q.Status = v },
}

// ParseQuery splits a search string into field filters and free text.
func ParseQuery(s string) Query {
	var q Query
	var text []string
	for _, term := range strings.Fields(s) {
		name, value, ok := strings.Cut(term, ":")
		set, known := queryFields[strings.ToLower(name)]
		if ok && known && value != "" {
			set(&q, value)
			continue
		}
		text = append(text, term)
	}
	q.Text = strings.Join(text, " ")
	return q
}

// Matches reports whether n satisfies every part of the query.
func (q Query) Matches(n model.Notification) bool {
	if q.Kind != "" && !strings.EqualFold(string(n.Kind), q.Kind) {
		return false
	}
	if q.Room != "" && n.RoomID.String() != q.Room {
		return false
	}
	if q.Tag != "" && !strings.EqualFold(n.Tag, q.Tag) {
		return false
	}
	if q.Status != "" && !strings.EqualFold(n.Status(), q.Status) {
		return false
	}
	if q.Text == "" {
		return true
	}
	text := strings.ToLower(q.Text)
	return strings.Contains(strings.ToLower(n.Title), text) ||
		strings.Contains(strings.ToLower(n.Body), text)
}

// filterNotifications applies the dismissed toggle and the query.
func filterNotifications(ns []model.Notification, showDismissed bool, q Query) []model.Notification {
	out := make([]model.Notification, 0, len(ns))
	for _, n := range ns {
		if !showDismissed && n.IsDismissed() {
			continue
		}
		if q.Matches(n) {
			out = append(out, n)
		}
	}
	return out
}
