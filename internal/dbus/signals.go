package dbus

import (
	"fmt"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// EmitPermissionChanged emits the PermissionChanged signal so other
// processes watching the service see consent changes.
func (s *Service) EmitPermissionChanged(state model.PermissionState) error {
	s.mu.Lock()
	conn, running := s.conn, s.running
	s.mu.Unlock()

	if conn == nil || !running {
		return fmt.Errorf("not connected to D-Bus")
	}

	if err := conn.Emit(ServicePath, ServiceInterface+".PermissionChanged", state.String()); err != nil {
		return fmt.Errorf("failed to emit PermissionChanged signal: %w", err)
	}

	s.logger.Debug("emitted PermissionChanged signal", "state", state.String())
	return nil
}
