// Package daemon holds the chatnotifyd orchestration pieces that sit
// between components: internal notices, configuration and state hot
// reload, and the welcome notification shown after consent.
package daemon
