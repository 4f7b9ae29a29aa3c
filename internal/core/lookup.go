// Package core holds the history lookups shared by the CLI commands.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// LookupByID finds a notification by its ID.
func LookupByID(notifications []model.Notification, id string) *model.Notification {
	for i := range notifications {
		if notifications[i].ID == id {
			return &notifications[i]
		}
	}
	return nil
}

// LookupByIndex finds a notification by 1-based index.
func LookupByIndex(notifications []model.Notification, index int) *model.Notification {
	if index < 1 || index > len(notifications) {
		return nil
	}
	return &notifications[index-1]
}

// Lookup resolves a selector that is either a 1-based index, an ID, or a
// full line of dmenu output ("3 | 5m | chat | ...").
func Lookup(notifications []model.Notification, selector string) (*model.Notification, error) {
	selector = ParseDmenuSelection(selector)
	if idx, err := strconv.Atoi(selector); err == nil {
		if n := LookupByIndex(notifications, idx); n != nil {
			return n, nil
		}
		return nil, fmt.Errorf("notification at index %d not found", idx)
	}
	if n := LookupByID(notifications, selector); n != nil {
		return n, nil
	}
	return nil, fmt.Errorf("notification with ID %s not found", selector)
}

// ParseDmenuSelection extracts the index from a selected dmenu line.
// Anything that does not look like dmenu output is returned trimmed.
func ParseDmenuSelection(selection string) string {
	selection = strings.TrimSpace(selection)
	if !strings.Contains(selection, "|") {
		return selection
	}

	first, _, _ := strings.Cut(selection, "|")
	first = strings.TrimSpace(first)
	if idx, err := strconv.Atoi(first); err == nil && idx > 0 {
		return first
	}
	return selection
}

// Search returns notifications whose title or body contains term,
// case-insensitively.
func Search(notifications []model.Notification, term string) []model.Notification {
	if term == "" {
		return notifications
	}
	term = strings.ToLower(term)

	var result []model.Notification
	for _, n := range notifications {
		if strings.Contains(strings.ToLower(n.Title), term) ||
			strings.Contains(strings.ToLower(n.Body), term) {
			result = append(result, n)
		}
	}
	return result
}

// ParseDuration parses durations with day (d) and week (w) suffixes in
// addition to Go's units. "0" and "" mean no limit.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "0" || s == "" {
		return 0, nil
	}

	if daysStr, found := strings.CutSuffix(s, "d"); found {
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	if weeksStr, found := strings.CutSuffix(s, "w"); found {
		weeks, err := strconv.Atoi(weeksStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}

	return time.ParseDuration(s)
}
