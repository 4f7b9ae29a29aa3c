package model

import "fmt"

// PermissionState is the user's notification consent decision.
type PermissionState string

const (
	// PermissionDefault means the user has not been asked yet.
	PermissionDefault PermissionState = "default"
	// PermissionGranted means notifications may be shown.
	PermissionGranted PermissionState = "granted"
	// PermissionDenied means the user refused notifications.
	PermissionDenied PermissionState = "denied"
)

// ParsePermissionState converts a string into a PermissionState.
// An empty string is treated as PermissionDefault.
func ParsePermissionState(s string) (PermissionState, error) {
	switch PermissionState(s) {
	case "", PermissionDefault:
		return PermissionDefault, nil
	case PermissionGranted:
		return PermissionGranted, nil
	case PermissionDenied:
		return PermissionDenied, nil
	}
	return PermissionDefault, fmt.Errorf("invalid permission state %q, must be one of: default, granted, denied", s)
}

// Granted reports whether notifications may be shown.
func (p PermissionState) Granted() bool {
	return p == PermissionGranted
}

// String implements fmt.Stringer.
func (p PermissionState) String() string {
	if p == "" {
		return string(PermissionDefault)
	}
	return string(p)
}
