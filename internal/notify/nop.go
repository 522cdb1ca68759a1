package notify

// Nop is the degraded-mode NotificationChannel used when the platform offers
// no file watching. Notify does nothing and subscribers never tick, which is
// sufficient for correctness: the reconciliation poll alone keeps every
// consumer converging on the latest store snapshot.
type Nop struct{}

// NewNop returns the polling-only channel.
func NewNop() *Nop { return &Nop{} }

// Notify is a no-op.
func (*Nop) Notify() {}

// Subscribe returns a nil channel; receiving from it blocks forever, so
// select loops fall through to their poll ticker.
func (*Nop) Subscribe() <-chan struct{} { return nil }

// Close is a no-op.
func (*Nop) Close() error { return nil }
