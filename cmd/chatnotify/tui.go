package main

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/chatnotify/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive history browser",
	Long: `Launch the interactive terminal user interface for browsing the
notification history. The view follows the history file, so notifications
shown by the agent appear as they arrive.

Key bindings:
  j/k, ↑/↓    Navigate list
  enter       View notification details
  c           Copy body to clipboard
  u           Copy URL to clipboard
  C / Y       Copy visible notifications as JSON / YAML
  /           Search (kind:chat room:42 tag:... status:... text)
  d           Mark dismissed
  a           Toggle showing dismissed
  r           Refresh
  ?           Show help
  q           Quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	path, err := historyPath()
	if err != nil {
		return err
	}

	return tui.Run(tui.RunOptions{
		Store:       s,
		PersistPath: path,
		Logger:      logger,
	})
}
