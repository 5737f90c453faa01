// Package core holds the process-wide realtime state: which connections
// exist, who they are, which rooms they sit in, and who is online. All of it
// is single-instance in-memory state injected into the dispatcher.
package core

// ConnID identifies one live transport connection.
type ConnID string

// Sender is the transport half of a connection as the core sees it.
// TrySend must not block: a full buffer is an error, not a stall.
type Sender interface {
	TrySend(frame []byte) error
}

// Frame is the wire envelope every outbound event is wrapped in.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
