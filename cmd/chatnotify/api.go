package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmylchreest/chatnotify/internal/dbus"
)

const requestTimeout = 10 * time.Second

// endpointURL joins path onto the agent's HTTP endpoint.
func endpointURL(path string) string {
	base := globalOpts.endpoint
	if base == "" {
		base = cfg.Server.Listen
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return strings.TrimSuffix(base, "/") + path
}

// apiError is the error body written by the agent.
type apiError struct {
	Error string `json:"error"`
}

// callAgent sends body (JSON-encoded unless it is raw bytes) to the agent
// and decodes a JSON response into out when out is not nil.
func callAgent(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpointURL(path), reader)
	if err != nil {
		return 0, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("is chatnotifyd running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e apiError
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return resp.StatusCode, fmt.Errorf("%s %s: %s (%d)", method, path, e.Error, resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// serviceClient connects to the agent's session bus service. The session
// bus connection is shared and stays open for the life of the process.
func serviceClient() (*dbus.ServiceClient, error) {
	client, err := dbus.ConnectSession(logger)
	if err != nil {
		return nil, err
	}
	return dbus.NewServiceClient(client.Conn()), nil
}
