package bridge

import "context"

// Handler is the contract the transport collaborator delivers events through.
// The transport calls HandleMessage once per inbound event and translates the
// return value into its native acknowledgement: nil acknowledges, an error
// rejects. The core never polls the transport.
type Handler interface {
	HandleMessage(ctx context.Context, ev *InboundEvent) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev *InboundEvent) error

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, ev *InboundEvent) error {
	return f(ctx, ev)
}

// Listener is a managed persistent-connection transport. Implementations are
// external collaborators; Listen blocks until ctx is cancelled or the
// connection fails terminally, delivering each inbound event to h.
type Listener interface {
	Listen(ctx context.Context, h Handler) error
}

var _ Handler = (*Orchestrator)(nil)
