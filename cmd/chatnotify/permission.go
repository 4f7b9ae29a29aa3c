package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/permission"
	"github.com/jmylchreest/chatnotify/internal/store"
)

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Show or change the notification permission",
	Long: `Show or change whether chatnotifyd may show notifications.

The decision is stored in the shared state file; a running agent picks up
changes made here immediately.

Examples:
  # Show the current decision
  chatnotify permission

  # Ask the agent to prompt for consent
  chatnotify permission request

  # Grant or deny without prompting
  chatnotify permission grant
  chatnotify permission deny

  # Forget the decision so the next interaction prompts again
  chatnotify permission reset`,
	RunE: runPermissionStatus,
}

var permissionRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Ask the running agent to prompt for consent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := serviceClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Permission.Timeout.Duration()+30*time.Second)
		defer cancel()

		granted, err := sc.RequestPermission(ctx)
		if err != nil {
			return err
		}
		if granted {
			fmt.Println("Notifications allowed")
			return nil
		}
		state, err := sc.Permission(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Notifications not allowed (%s)\n", state)
		return nil
	},
}

func setPermissionCmd(use, short string, state model.PermissionState) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sf, err := stateFile()
			if err != nil {
				return err
			}
			if err := sf.SavePermission(state, permission.SourceCLI); err != nil {
				return fmt.Errorf("failed to save permission: %w", err)
			}
			fmt.Printf("Permission set to %s\n", state)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(permissionCmd)

	permissionCmd.AddCommand(
		permissionRequestCmd,
		setPermissionCmd("grant", "Allow notifications without prompting", model.PermissionGranted),
		setPermissionCmd("deny", "Block notifications", model.PermissionDenied),
		setPermissionCmd("reset", "Forget the decision so the next interaction prompts", model.PermissionDefault),
	)
}

func runPermissionStatus(cmd *cobra.Command, args []string) error {
	sf, err := stateFile()
	if err != nil {
		return err
	}
	st, err := sf.Load()
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	fmt.Printf("Permission: %s\n", st.Permission)
	if st.PermissionChangedAt > 0 {
		fmt.Printf("Changed:    %s", humanize.Time(time.Unix(st.PermissionChangedAt, 0)))
		if st.PermissionSource != "" {
			fmt.Printf(" (%s)", st.PermissionSource)
		}
		fmt.Println()
	}
	if s, err := getStore(); err == nil {
		if latest := s.Filter(store.FilterOptions{IncludeDismissed: true, Limit: 1}); len(latest) > 0 {
			fmt.Printf("Last shown: %s\n", latest[0].RelativeTime())
		}
	}
	return nil
}
