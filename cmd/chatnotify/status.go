package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/chatnotify/internal/model"
)

var statusOpts struct {
	since string
}

// WaybarStatus represents the Waybar custom module JSON format.
type WaybarStatus struct {
	Text       string `json:"text"`
	Alt        string `json:"alt,omitempty"`
	Tooltip    string `json:"tooltip,omitempty"`
	Class      string `json:"class,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
}

// statusCounts is everything the status line is built from.
type statusCounts struct {
	Running    bool
	Permission model.PermissionState
	Unread     int
	Pending    int
	Failed     int
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Output Waybar-compatible JSON status",
	Long: `Output agent status in Waybar's custom module JSON format.

The count is the number of notifications in history that have not been
dismissed. The class reflects the agent: "error" when it is not running or
messages failed to send, "blocked" when permission is denied, "empty" when
nothing is unread.

  "custom/chatnotify": {
    "exec": "chatnotify status",
    "interval": 5,
    "return-type": "json",
    "on-click": "chatnotify tui"
  }`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusOpts.since, "since", "",
		"Only count notifications from the last duration (e.g., 1h, 1d)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	var counts statusCounts

	var health map[string]string
	code, err := callAgent(cmd.Context(), http.MethodGet, "/health", nil, &health)
	counts.Running = err == nil && code == http.StatusOK

	if sf, err := stateFile(); err == nil {
		if p, err := sf.LoadPermission(); err == nil {
			counts.Permission = p
		}
	}

	historyOpts.since = statusOpts.since
	if _, ns, err := queryHistory(); err == nil {
		counts.Unread = len(ns)
	}

	if queue, err := outboxFile(); err == nil {
		if msgs, err := queue.All(); err == nil {
			for _, m := range msgs {
				switch m.Status {
				case model.OutboundPending:
					counts.Pending++
				case model.OutboundFailed:
					counts.Failed++
				}
			}
		}
	}

	return json.NewEncoder(os.Stdout).Encode(buildStatus(counts))
}

// buildStatus maps counts to a Waybar status.
func buildStatus(c statusCounts) WaybarStatus {
	class := "normal"
	switch {
	case !c.Running || c.Failed > 0:
		class = "error"
	case c.Permission == model.PermissionDenied:
		class = "blocked"
	case c.Unread == 0:
		class = "empty"
	}

	text := ""
	if c.Unread > 0 {
		text = fmt.Sprintf("%d", c.Unread)
	}

	return WaybarStatus{
		Text:       text,
		Alt:        class,
		Tooltip:    buildTooltip(c),
		Class:      class,
		Percentage: min(c.Unread, 100),
	}
}

func buildTooltip(c statusCounts) string {
	var lines []string
	if c.Running {
		lines = append(lines, "Agent: running")
	} else {
		lines = append(lines, "Agent: not running")
	}
	if c.Permission != "" {
		lines = append(lines, "Permission: "+string(c.Permission))
	}
	lines = append(lines, fmt.Sprintf("Unread: %d", c.Unread))
	if c.Pending > 0 {
		lines = append(lines, fmt.Sprintf("Queued: %d", c.Pending))
	}
	if c.Failed > 0 {
		lines = append(lines, fmt.Sprintf("Failed to send: %d", c.Failed))
	}
	return strings.Join(lines, "\n")
}

