package direct

// Limits bounds the per-payload and per-body sizes the direct engine
// enforces. There is no coalescing threshold here — the direct
// transport has no stream framing to coalesce, each payload already
// arrives (or is pushed) as one opaque unit via the native queue.
type Limits struct {
	BodyLimit  int
	FrameLimit int
}

// DefaultLimits returns the stock 32 MiB body / 64 MiB frame bounds.
func DefaultLimits() Limits {
	return Limits{
		BodyLimit:  32 << 20,
		FrameLimit: 64 << 20,
	}
}
