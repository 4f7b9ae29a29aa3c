package tui

import (
	"encoding/json"
	"fmt"

	"github.com/atotto/clipboard"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// writeClipboard is replaced in tests.
var writeClipboard = func(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("no clipboard command available")
	}
	return clipboard.WriteAll(text)
}

// copyText copies text to the system clipboard.
func copyText(text string) error {
	return writeClipboard(text)
}

// exportNotifications renders notifications as "json" or "yaml".
func exportNotifications(ns []model.Notification, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(ns, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return string(data), nil
	case "yaml":
		data, err := yaml.Marshal(ns)
		if err != nil {
			return "", fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("unknown export format %q", format)
}
