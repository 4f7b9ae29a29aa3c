package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/chatnotify/internal/config"
	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/push"
	"github.com/jmylchreest/chatnotify/internal/store"
)

var outboxOpts struct {
	room     string
	clientID string
	local    bool
	all      bool
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and add to the outbound message queue",
	Long: `Chat messages that could not be sent are queued in the outbox and resent
by the agent with backoff when a sync runs.

Examples:
  # Queue a message through the running agent (schedules a sync)
  chatnotify outbox add --room 42 "See you at nine"

  # Queue directly in the file when the agent is not running
  chatnotify outbox add --room 42 --local "See you at nine"

  # Show pending and failed messages
  chatnotify outbox list`,
	RunE: runOutboxList,
}

var outboxAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Queue a chat message for sending",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOutboxAdd,
}

var outboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued messages",
	Args:  cobra.NoArgs,
	RunE:  runOutboxList,
}

var outboxPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove sent messages, or every message with --all",
	Args:  cobra.NoArgs,
	RunE:  runOutboxPurge,
}

var outboxRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Move failed messages back to pending and schedule a sync",
	Args:  cobra.NoArgs,
	RunE:  runOutboxRetry,
}

func init() {
	rootCmd.AddCommand(outboxCmd)
	outboxCmd.AddCommand(outboxAddCmd, outboxListCmd, outboxPurgeCmd, outboxRetryCmd)

	outboxAddCmd.Flags().StringVar(&outboxOpts.room, "room", "", "Room the message is for")
	outboxAddCmd.Flags().StringVar(&outboxOpts.clientID, "client-id", "", "Client id sent with the message")
	outboxAddCmd.Flags().BoolVar(&outboxOpts.local, "local", false, "Write to the outbox file instead of calling the agent")
	_ = outboxAddCmd.MarkFlagRequired("room")
	outboxPurgeCmd.Flags().BoolVar(&outboxOpts.all, "all", false, "Also remove pending and failed messages")
}

func outboxFile() (*store.Outbox, error) {
	path, err := config.OutboxPath()
	if err != nil {
		return nil, err
	}
	return store.NewOutbox(path), nil
}

func runOutboxAdd(cmd *cobra.Command, args []string) error {
	req := push.OutboxRequest{
		RoomID:   model.ParseRoomID(outboxOpts.room),
		ClientID: outboxOpts.clientID,
		Content:  strings.Join(args, " "),
	}

	if outboxOpts.local {
		msg, err := model.NewOutboundMessage(req.RoomID, req.ClientID, req.Content)
		if err != nil {
			return err
		}
		ob, err := outboxFile()
		if err != nil {
			return err
		}
		if err := ob.Enqueue(*msg); err != nil {
			return err
		}
		fmt.Printf("Queued %s (sent on the next sync)\n", msg.ID)
		return nil
	}

	var msg model.OutboundMessage
	if _, err := callAgent(cmd.Context(), http.MethodPost, "/outbox", req, &msg); err != nil {
		return err
	}
	fmt.Printf("Queued %s, sync scheduled\n", msg.ID)
	return nil
}

func runOutboxList(cmd *cobra.Command, args []string) error {
	ob, err := outboxFile()
	if err != nil {
		return err
	}
	msgs, err := ob.All()
	if err != nil {
		return err
	}
	return printOutbox(os.Stdout, msgs)
}

func printOutbox(w io.Writer, msgs []model.OutboundMessage) error {
	if len(msgs) == 0 {
		_, err := fmt.Fprintln(w, "Outbox is empty")
		return err
	}
	for _, m := range msgs {
		line := fmt.Sprintf("%s  %-7s  room %s  %s  %q",
			m.ID, m.Status, m.RoomID, humanize.Time(time.Unix(m.QueuedAt, 0)), m.Content)
		if m.Attempts > 0 {
			line += fmt.Sprintf("  (%s)", english.Plural(m.Attempts, "attempt", "attempts"))
		}
		if m.LastError != "" {
			line += "  " + m.LastError
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func runOutboxPurge(cmd *cobra.Command, args []string) error {
	ob, err := outboxFile()
	if err != nil {
		return err
	}
	if outboxOpts.all {
		if err := os.Remove(ob.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		fmt.Println("Outbox cleared")
		return nil
	}
	n, err := ob.RemoveSent()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", english.Plural(n, "sent message", "sent messages"))
	return nil
}

func runOutboxRetry(cmd *cobra.Command, args []string) error {
	ob, err := outboxFile()
	if err != nil {
		return err
	}
	msgs, err := ob.All()
	if err != nil {
		return err
	}

	retried := 0
	for _, m := range msgs {
		if m.Status != model.OutboundFailed {
			continue
		}
		m.Status = model.OutboundPending
		m.Attempts = 0
		m.LastError = ""
		if err := ob.Update(m); err != nil {
			return err
		}
		retried++
	}
	fmt.Printf("Moved %s back to pending\n", english.Plural(retried, "message", "messages"))

	if retried > 0 {
		if _, err := callAgent(cmd.Context(), http.MethodPost, "/sync", push.SyncRequest{}, nil); err != nil {
			logger.Warn("could not schedule sync; messages are sent on the next one", "error", err)
		}
	}
	return nil
}
