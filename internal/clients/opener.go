package clients

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandOpener opens URLs with an external command such as xdg-open.
type CommandOpener struct {
	Command string
	// Resolve turns application-relative paths into absolute URLs; may be nil.
	Resolve func(string) string
}

// Open implements Opener. The command is started and reaped in the
// background; only a failure to start it is reported.
func (o CommandOpener) Open(ctx context.Context, url string) error {
	if o.Resolve != nil {
		url = o.Resolve(url)
	}
	fields := strings.Fields(o.Command)
	if len(fields) == 0 {
		return fmt.Errorf("empty opener command")
	}

	cmd := exec.CommandContext(context.WithoutCancel(ctx), fields[0], append(fields[1:], url)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", fields[0], err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
