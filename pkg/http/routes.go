package http

const (
	Ping     = "Ping"
	Version  = "Version"
	LastPass = "LastPass"
	Trigger  = "Trigger"
)
