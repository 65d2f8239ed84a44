package realtime

import (
	"sync"

	"github.com/google/uuid"
)

type ConnKind string

const (
	KindVisitor  ConnKind = "visitor"
	KindOperator ConnKind = "operator"
)

// Conn is one live socket as the registry sees it. The socket layer drains
// Outbound; the registry closes Outbound exactly once when the connection
// leaves.
type Conn struct {
	ID      uuid.UUID
	Kind    ConnKind
	Subject string // visitor id or operator id

	Outbound chan Envelope

	// guarded by Hub.mu
	rooms  map[string]bool
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed once the registry has dropped the connection.
func (c *Conn) Done() <-chan struct{} { return c.done }
