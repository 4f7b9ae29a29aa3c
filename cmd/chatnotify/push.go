package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/chatnotify/internal/agent"
	"github.com/jmylchreest/chatnotify/internal/clients"
	"github.com/jmylchreest/chatnotify/internal/push"
)

var pushOpts struct {
	file string
}

var pushCmd = &cobra.Command{
	Use:   "push [json]",
	Short: "Deliver a push payload to the agent",
	Long: `Deliver a push payload to the running agent as if it came from the
push service. The payload is read from the argument, --file, or stdin.

Examples:
  chatnotify push '{"title":"New Message","body":"Hi","data":{"room_id":42}}'
  chatnotify push --file payload.json
  echo 'plain text body' | chatnotify push`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readPayload(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		if len(data) > push.MaxBodySize {
			return fmt.Errorf("payload is %d bytes; the limit is %d", len(data), push.MaxBodySize)
		}
		if _, err := callAgent(cmd.Context(), http.MethodPost, "/push", data, nil); err != nil {
			return err
		}
		fmt.Println("Push delivered")
		return nil
	},
}

func readPayload(stdin io.Reader, args []string) ([]byte, error) {
	switch {
	case len(args) == 1:
		return []byte(args[0]), nil
	case pushOpts.file != "":
		return os.ReadFile(pushOpts.file)
	default:
		return io.ReadAll(stdin)
	}
}

var syncOpts struct {
	tag string
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Ask the agent to resend queued messages",
	Long: `Fire a background sync event. With the default tag the agent drains the
outbound message queue, retrying with backoff; the command returns as soon
as the sync has been scheduled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp push.SyncRequest
		if _, err := callAgent(cmd.Context(), http.MethodPost, "/sync", push.SyncRequest{Tag: syncOpts.tag}, &resp); err != nil {
			return err
		}
		fmt.Printf("Sync %q scheduled\n", resp.Tag)
		return nil
	},
}

var windowsOpts struct {
	yaml bool
}

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List application windows attached to the agent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var windows []clients.Info
		if _, err := callAgent(cmd.Context(), http.MethodGet, "/windows", nil, &windows); err != nil {
			return err
		}
		if windowsOpts.yaml {
			return yaml.NewEncoder(os.Stdout).Encode(windows)
		}
		return printWindows(os.Stdout, windows)
	},
}

func init() {
	rootCmd.AddCommand(pushCmd, syncCmd, windowsCmd)

	pushCmd.Flags().StringVarP(&pushOpts.file, "file", "f", "", "Read the payload from a file")
	syncCmd.Flags().StringVar(&syncOpts.tag, "tag", agent.SyncTagMessages, "Sync tag")
	windowsCmd.Flags().BoolVar(&windowsOpts.yaml, "yaml", false, "Output YAML")
}

func printWindows(w io.Writer, windows []clients.Info) error {
	if len(windows) == 0 {
		_, err := fmt.Fprintln(w, "No windows attached")
		return err
	}
	for _, win := range windows {
		focus := " "
		if win.Focused {
			focus = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %s  %s  (attached %s)\n",
			focus, win.ID, win.URL, humanize.Time(win.AttachedAt)); err != nil {
			return err
		}
	}
	return nil
}
