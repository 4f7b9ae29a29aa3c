package daemon

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/notify"
	"github.com/jmylchreest/chatnotify/internal/store"
)

// WelcomeShower shows the welcome notification.
type WelcomeShower interface {
	ShowWelcome(ctx context.Context) (notify.Result, error)
}

// Welcomer shows the welcome notification the first time permission is
// granted. The shown flag is kept in the shared state file so restarts and
// later re-grants do not repeat it.
type Welcomer struct {
	shower WelcomeShower
	state  *store.StateFile
	logger *slog.Logger
}

// NewWelcomer creates a Welcomer.
func NewWelcomer(shower WelcomeShower, state *store.StateFile, logger *slog.Logger) *Welcomer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Welcomer{shower: shower, state: state, logger: logger}
}

// OnPermissionChange is a permission.ChangeFunc.
func (w *Welcomer) OnPermissionChange(ctx context.Context, _, to model.PermissionState) {
	if to != model.PermissionGranted {
		return
	}

	st, err := w.state.Load()
	if err != nil {
		w.logger.Warn("failed to read state", "error", err)
		return
	}
	if st.WelcomeShown {
		return
	}

	res, err := w.shower.ShowWelcome(ctx)
	if err != nil {
		w.logger.Warn("failed to show welcome notification", "error", err)
		return
	}
	if !res.Shown {
		return
	}
	if _, err := w.state.Update(func(s *store.SharedState) { s.WelcomeShown = true }); err != nil {
		w.logger.Warn("failed to record welcome", "error", err)
	}
}
