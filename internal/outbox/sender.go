package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// Sender delivers one queued message to the chat server.
type Sender interface {
	Send(ctx context.Context, msg model.OutboundMessage) error
}

// PermanentError marks a delivery failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

type sendRequest struct {
	RoomID   model.RoomID `json:"room_id"`
	ClientID string       `json:"client_id,omitempty"`
	Content  string       `json:"content"`
}

// HTTPSender posts messages as JSON to the chat server's send endpoint.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSender creates an HTTPSender with a per-request timeout.
func NewHTTPSender(endpoint string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Send implements Sender. Any 2xx is success; 4xx responses other than
// 429 are permanent failures.
func (s *HTTPSender) Send(ctx context.Context, msg model.OutboundMessage) error {
	body, err := json.Marshal(sendRequest{RoomID: msg.RoomID, ClientID: msg.ClientID, Content: msg.Content})
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("encode message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", s.endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("post %s: %s", s.endpoint, resp.Status)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &PermanentError{Err: fmt.Errorf("post %s: %s", s.endpoint, resp.Status)}
	default:
		return fmt.Errorf("post %s: %s", s.endpoint, resp.Status)
	}
}
