package emit

import "context"

// NullEmitter discards every event. Useful when observability overhead is
// unwanted, or as the zero-value default when no callback is configured.
type NullEmitter struct{}

// NewNullEmitter builds a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

func (n *NullEmitter) Emit(event Event) {}

func (n *NullEmitter) EmitBatch(_ context.Context, events []Event) error { return nil }

func (n *NullEmitter) Flush(_ context.Context) error { return nil }
