package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var notifyOpts struct {
	body string
	tag  string
	url  string
	room string
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Ask the running agent to show a notification",
	Long: `Ask the running chatnotifyd to show a notification over the session bus.

The agent applies its permission and focus policy; a notification that was
suppressed is reported but is not an error.

Examples:
  chatnotify notify show "Build finished" --body "All tests passed"
  chatnotify notify chat Alice "Is the room free on Friday?" --room 42
  chatnotify notify payment "Your booking is confirmed"`,
}

var notifyShowCmd = &cobra.Command{
	Use:   "show <title>",
	Short: "Show a notification with a custom title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callNotify(cmd.Context(), func(ctx context.Context) (bool, error) {
			sc, err := serviceClient()
			if err != nil {
				return false, err
			}
			return sc.Show(ctx, args[0], notifyOpts.body, notifyOpts.tag, notifyOpts.url, notifyOpts.room)
		})
	},
}

var notifyChatCmd = &cobra.Command{
	Use:   "chat <sender> <message>",
	Short: "Show a chat message notification",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callNotify(cmd.Context(), func(ctx context.Context) (bool, error) {
			sc, err := serviceClient()
			if err != nil {
				return false, err
			}
			return sc.ShowChatNotification(ctx, args[0], args[1], notifyOpts.room)
		})
	},
}

var notifyPaymentCmd = &cobra.Command{
	Use:   "payment <message>",
	Short: "Show a payment confirmation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callNotify(cmd.Context(), func(ctx context.Context) (bool, error) {
			sc, err := serviceClient()
			if err != nil {
				return false, err
			}
			return sc.ShowPaymentNotification(ctx, args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyShowCmd, notifyChatCmd, notifyPaymentCmd)

	notifyShowCmd.Flags().StringVar(&notifyOpts.body, "body", "", "Notification body")
	notifyShowCmd.Flags().StringVar(&notifyOpts.tag, "tag", "", "Tag; a later notification with the same tag replaces this one")
	notifyShowCmd.Flags().StringVar(&notifyOpts.url, "url", "", "URL opened when the notification is clicked")
	notifyShowCmd.Flags().StringVar(&notifyOpts.room, "room", "", "Chat room the notification belongs to")
	notifyChatCmd.Flags().StringVar(&notifyOpts.room, "room", "", "Chat room the message was posted in")
}

func callNotify(ctx context.Context, call func(ctx context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	shown, err := call(ctx)
	if err != nil {
		return err
	}
	if shown {
		fmt.Println("Notification shown")
	} else {
		fmt.Println("Notification suppressed (permission not granted or window focused)")
	}
	return nil
}
