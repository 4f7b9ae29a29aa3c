package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/chatnotify/internal/model"
)

func TestBuildStatus(t *testing.T) {
	tests := []struct {
		name      string
		counts    statusCounts
		wantText  string
		wantClass string
	}{
		{
			name:      "agent down",
			counts:    statusCounts{Unread: 2},
			wantText:  "2",
			wantClass: "error",
		},
		{
			name:      "failed messages",
			counts:    statusCounts{Running: true, Permission: model.PermissionGranted, Failed: 1},
			wantClass: "error",
		},
		{
			name:      "denied",
			counts:    statusCounts{Running: true, Permission: model.PermissionDenied, Unread: 1},
			wantText:  "1",
			wantClass: "blocked",
		},
		{
			name:      "nothing unread",
			counts:    statusCounts{Running: true, Permission: model.PermissionGranted},
			wantClass: "empty",
		},
		{
			name:      "unread",
			counts:    statusCounts{Running: true, Permission: model.PermissionGranted, Unread: 3, Pending: 1},
			wantText:  "3",
			wantClass: "normal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := buildStatus(tt.counts)
			assert.Equal(t, tt.wantText, s.Text)
			assert.Equal(t, tt.wantClass, s.Class)
			assert.Equal(t, tt.wantClass, s.Alt)
		})
	}
}

func TestBuildTooltip(t *testing.T) {
	tip := buildTooltip(statusCounts{Running: true, Permission: model.PermissionGranted, Unread: 3, Pending: 1, Failed: 2})
	assert.Contains(t, tip, "Agent: running")
	assert.Contains(t, tip, "Permission: granted")
	assert.Contains(t, tip, "Queued: 1")
	assert.Contains(t, tip, "Failed to send: 2")

	tip = buildTooltip(statusCounts{})
	assert.Contains(t, tip, "Agent: not running")
	assert.NotContains(t, tip, "Queued")
}

func TestPruneCandidates(t *testing.T) {
	now := int64(1_700_000_000)
	ns := []model.Notification{
		{ID: "c", Timestamp: now},
		{ID: "b", Timestamp: now - 3600},
		{ID: "a", Timestamp: now - 7200},
	}

	got := pruneCandidates(ns, time.Unix(now-5000, 0), 0)
	assert.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	got = pruneCandidates(ns, time.Time{}, 1)
	assert.Len(t, got, 2)

	got = pruneCandidates(ns, time.Time{}, 0)
	assert.Empty(t, got)
}
