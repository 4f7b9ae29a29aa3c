// Package outbox resends chat messages that were queued while the chat
// server was unreachable.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// Queue is the persisted message queue.
type Queue interface {
	Pending() ([]model.OutboundMessage, error)
	Update(m model.OutboundMessage) error
	RemoveSent() (int, error)
}

// Policy controls retries for a single message.
type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// DefaultPolicy returns the default backoff: 1s doubling up to 30s, five
// attempts per message.
func DefaultPolicy() Policy {
	return Policy{
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    5,
	}
}

// Backoff returns the delay before retry number attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return min(d, p.MaxBackoff)
}

// Report summarises a drain.
type Report struct {
	Sent    int
	Failed  int
	Pending int // left in the queue because the drain was cancelled
}

// Resender drains the queue one message at a time.
type Resender struct {
	queue  Queue
	sender Sender
	logger *slog.Logger

	// OnFailed is called for each message that moved to failed.
	OnFailed func(msg model.OutboundMessage)

	sleep func(ctx context.Context, d time.Duration) error

	drainMu  sync.Mutex
	policyMu sync.RWMutex
	policy   Policy
}

// NewResender creates a Resender.
func NewResender(queue Queue, sender Sender, policy Policy, logger *slog.Logger) *Resender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resender{
		queue:  queue,
		sender: sender,
		logger: logger,
		sleep:  sleepContext,
		policy: policy,
	}
}

// SetPolicy replaces the retry policy; it applies from the next attempt.
func (r *Resender) SetPolicy(p Policy) {
	r.policyMu.Lock()
	r.policy = p
	r.policyMu.Unlock()
}

// Policy returns the current retry policy.
func (r *Resender) Policy() Policy {
	r.policyMu.RLock()
	defer r.policyMu.RUnlock()
	return r.policy
}

// Drain delivers every pending message. Drains are serialised. Delivered
// messages are removed from the queue; messages that run out of attempts
// or fail permanently are kept with status failed.
func (r *Resender) Drain(ctx context.Context) (Report, error) {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	var report Report
	pending, err := r.queue.Pending()
	if err != nil {
		return report, err
	}

	for i, msg := range pending {
		sent, err := r.deliver(ctx, msg)
		if err != nil {
			report.Pending = len(pending) - i
			r.cleanup()
			return report, err
		}
		if sent {
			report.Sent++
		} else {
			report.Failed++
		}
	}
	r.cleanup()

	if report.Sent > 0 || report.Failed > 0 {
		r.logger.Info("outbox drained", "sent", report.Sent, "failed", report.Failed)
	}
	return report, nil
}

func (r *Resender) cleanup() {
	if _, err := r.queue.RemoveSent(); err != nil {
		r.logger.Warn("failed to remove sent messages", "error", err)
	}
}

// deliver retries one message. It returns an error only when ctx ends.
func (r *Resender) deliver(ctx context.Context, msg model.OutboundMessage) (bool, error) {
	for {
		policy := r.Policy()
		if msg.Attempts >= policy.MaxAttempts {
			return false, r.fail(msg)
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		err := r.sender.Send(ctx, msg)
		msg.Attempts++
		if err == nil {
			msg.Status = model.OutboundSent
			msg.SentAt = time.Now().Unix()
			msg.LastError = ""
			if uerr := r.queue.Update(msg); uerr != nil {
				r.logger.Warn("failed to record sent message", "id", msg.ID, "error", uerr)
			}
			r.logger.Debug("message sent", "id", msg.ID, "attempts", msg.Attempts)
			return true, nil
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// the attempt was cut short, it does not count
			return false, ctx.Err()
		}

		msg.LastError = err.Error()
		if IsPermanent(err) {
			return false, r.fail(msg)
		}
		if uerr := r.queue.Update(msg); uerr != nil {
			r.logger.Warn("failed to record attempt", "id", msg.ID, "error", uerr)
		}
		if msg.Attempts >= policy.MaxAttempts {
			return false, r.fail(msg)
		}

		delay := policy.Backoff(msg.Attempts)
		r.logger.Debug("send failed, retrying", "id", msg.ID, "attempt", msg.Attempts, "delay", delay, "error", err)
		if err := r.sleep(ctx, delay); err != nil {
			return false, err
		}
	}
}

func (r *Resender) fail(msg model.OutboundMessage) error {
	msg.Status = model.OutboundFailed
	if err := r.queue.Update(msg); err != nil {
		r.logger.Warn("failed to record failed message", "id", msg.ID, "error", err)
	}
	r.logger.Warn("message delivery failed", "id", msg.ID, "room_id", msg.RoomID.String(), "attempts", msg.Attempts, "error", msg.LastError)
	if r.OnFailed != nil {
		r.OnFailed(msg)
	}
	return nil
}

// Run drains the queue every interval until ctx ends.
func (r *Resender) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("periodic sync failed", "error", err)
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
