package api

import (
	"context"
	"time"
)

// Server is what a running reconciler offers over HTTP.
type Server interface {
	// Ping checks that the control plane can be reached.
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)
	// LastPass reports on the most recent completed pass.
	LastPass(ctx context.Context) (PassStatus, error)
	// Trigger asks for a pass to start as soon as the loop is idle.
	// It does not wait for the pass.
	Trigger(ctx context.Context) error
}

type PassStatus struct {
	ID       string          `json:"id"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	Error    string          `json:"error,omitempty"`
	Services []ServiceStatus `json:"services"`
}

type ServiceStatus struct {
	Service    string `json:"service"`
	Outcome    string `json:"outcome"`
	Image      string `json:"image,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	RolledBack bool   `json:"rolledBack,omitempty"`
	Error      string `json:"error,omitempty"`
}
