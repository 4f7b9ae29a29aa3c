package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/chatnotify/internal/core"
	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/output"
	"github.com/jmylchreest/chatnotify/internal/store"
)

var historyOpts struct {
	// Filter options
	since     string
	kind      string
	tag       string
	search    string
	limit     int
	dismissed bool
	order     string

	// Output options
	format   string
	field    string
	template string
}

var historyCmd = &cobra.Command{
	Use:     "history [index|id]",
	Aliases: []string{"get"},
	Short:   "Query and output notification history",
	Long: `Query the notification history and output it in various formats.

Without arguments, outputs all notifications in dmenu format (suitable for
fuzzel, walker, rofi, etc.). With an index (1-based) or ID argument, outputs
that notification; a full dmenu line is accepted too.

Examples:
  # Chat notifications from the last day
  chatnotify history --kind chat --since 1d

  # Body of the third notification
  chatnotify history 3 --field body

  # Pick one with fuzzel and copy its URL
  chatnotify history | fuzzel -d | xargs -0 chatnotify history --field url | wl-copy

  # Export as YAML
  chatnotify history --format yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var historyPruneOpts struct {
	olderThan string
	keep      int
	dryRun    bool
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old notifications from history",
	Long: `Remove old notifications from the persistent history.

Examples:
  # Remove notifications older than 7 days
  chatnotify history prune --older-than 7d

  # Keep only the 100 most recent notifications
  chatnotify history prune --keep 100

  # Preview what would be removed
  chatnotify history prune --older-than 48h --dry-run`,
	Args: cobra.NoArgs,
	RunE: runHistoryPrune,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every notification from history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		count := s.Count()
		if err := s.Clear(); err != nil {
			return err
		}
		fmt.Printf("Removed %d notification(s)\n", count)
		return nil
	},
}

var historyDismissCmd = &cobra.Command{
	Use:   "dismiss <index|id>",
	Short: "Mark a notification dismissed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ns, err := queryHistory()
		if err != nil {
			return err
		}
		n, err := core.Lookup(ns, args[0])
		if err != nil {
			return err
		}
		if err := s.Dismiss(n.ID); err != nil {
			return err
		}
		fmt.Printf("Dismissed %s\n", n.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyPruneCmd, historyClearCmd, historyDismissCmd)

	f := historyCmd.PersistentFlags()
	f.StringVar(&historyOpts.since, "since", "",
		"Show notifications from the last duration (e.g., 1h, 7d, 1w)")
	f.StringVar(&historyOpts.kind, "kind", "",
		"Filter by kind (push, chat, payment, welcome, custom, internal)")
	f.StringVar(&historyOpts.tag, "tag", "",
		"Filter by tag (exact match)")
	f.StringVarP(&historyOpts.search, "search", "s", "",
		"Search in title and body")
	f.IntVarP(&historyOpts.limit, "limit", "n", 0,
		"Maximum number of notifications to show (0=unlimited)")
	f.BoolVarP(&historyOpts.dismissed, "all", "a", false,
		"Include dismissed notifications")
	f.StringVar(&historyOpts.order, "order", "desc",
		"Sort order (asc, desc)")

	historyCmd.Flags().StringVarP(&historyOpts.format, "format", "f", "dmenu",
		"Output format ("+strings.Join(output.Formats(), ", ")+")")
	historyCmd.Flags().StringVar(&historyOpts.field, "field", "",
		"Output a single field (id, kind, title, body, tag, url, room, status, all)")
	historyCmd.Flags().StringVar(&historyOpts.template, "template", "",
		"Custom Go template for dmenu/plain output")

	historyPruneCmd.Flags().StringVar(&historyPruneOpts.olderThan, "older-than", "",
		"Remove notifications older than this duration (e.g., 48h, 7d, 1w)")
	historyPruneCmd.Flags().IntVar(&historyPruneOpts.keep, "keep", 0,
		"Keep only the N most recent notifications (0=unlimited)")
	historyPruneCmd.Flags().BoolVar(&historyPruneOpts.dryRun, "dry-run", false,
		"Show what would be removed without removing it")
}

// historyFilter converts the filter flags to store options.
func historyFilter() (store.FilterOptions, error) {
	opts := store.FilterOptions{
		Kind:             model.Kind(strings.ToLower(historyOpts.kind)),
		Tag:              historyOpts.tag,
		IncludeDismissed: historyOpts.dismissed,
		SortOrder:        historyOpts.order,
	}
	if historyOpts.order != "asc" && historyOpts.order != "desc" {
		return opts, fmt.Errorf("invalid order %q (valid: asc, desc)", historyOpts.order)
	}
	since, err := core.ParseDuration(historyOpts.since)
	if err != nil {
		return opts, err
	}
	opts.Since = since
	return opts, nil
}

// queryHistory applies the filter flags. Limit is applied after search so
// --limit counts matches.
func queryHistory() (*store.Store, []model.Notification, error) {
	s, err := getStore()
	if err != nil {
		return nil, nil, err
	}
	opts, err := historyFilter()
	if err != nil {
		return nil, nil, err
	}
	ns := core.Search(s.Filter(opts), historyOpts.search)
	if historyOpts.limit > 0 && len(ns) > historyOpts.limit {
		ns = ns[:historyOpts.limit]
	}
	return s, ns, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, ns, err := queryHistory()
	if err != nil {
		return err
	}

	format := historyOpts.format
	if len(args) == 1 {
		n, err := core.Lookup(ns, args[0])
		if err != nil {
			return err
		}
		if historyOpts.field != "" {
			fmt.Println(output.FormatField(n, historyOpts.field))
			return nil
		}
		// A single notification defaults to JSON.
		if !cmd.Flags().Changed("format") {
			format = string(output.FormatJSON)
		}
		ns = []model.Notification{*n}
	}

	if len(ns) == 0 {
		logger.Debug("no notifications to output")
		return nil
	}

	opts := output.DefaultFormatterOptions()
	opts.Template = historyOpts.template
	formatter, err := output.NewFormatter(format, opts)
	if err != nil {
		return err
	}
	return formatter.Format(os.Stdout, ns)
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if historyPruneOpts.olderThan == "" && historyPruneOpts.keep == 0 {
		return fmt.Errorf("specify --older-than or --keep")
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	var cutoff time.Time
	if historyPruneOpts.olderThan != "" {
		d, err := core.ParseDuration(historyPruneOpts.olderThan)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		cutoff = time.Now().Add(-d)
	}

	if historyPruneOpts.dryRun {
		toRemove := pruneCandidates(s.All(), cutoff, historyPruneOpts.keep)
		if len(toRemove) == 0 {
			fmt.Println("No notifications to remove")
			return nil
		}
		fmt.Printf("Would remove %d notification(s):\n", len(toRemove))
		for i, n := range toRemove {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(toRemove)-10)
				break
			}
			fmt.Printf("  - [%s] %s (%s)\n", n.Kind, n.Title, n.RelativeTime())
		}
		return nil
	}

	removed := 0
	if !cutoff.IsZero() {
		n, err := s.PruneBefore(cutoff)
		if err != nil {
			return err
		}
		removed += n
	}
	if historyPruneOpts.keep > 0 {
		n, err := s.Prune(historyPruneOpts.keep)
		if err != nil {
			return err
		}
		removed += n
	}

	fmt.Printf("Removed %d notification(s)\n", removed)
	return nil
}

// pruneCandidates returns what a prune would remove from ns, which must be
// sorted newest first.
func pruneCandidates(ns []model.Notification, cutoff time.Time, keep int) []model.Notification {
	var out []model.Notification
	for i, n := range ns {
		tooOld := !cutoff.IsZero() && n.Timestamp < cutoff.Unix()
		beyondKeep := keep > 0 && i >= keep
		if tooOld || beyondKeep {
			out = append(out, n)
		}
	}
	return out
}
