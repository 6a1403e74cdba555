package peer

import (
	"context"
	"time"
)

// Dialer attempts a short-lived outbound connection, returning an
// error on failure. The session manager supplies the concrete
// implementation; the feeler task only needs success/failure.
type Dialer interface {
	DialProbe(ctx context.Context, addr string) error
}

// RunFeeler periodically pops a random entry from the new bucket array
// and attempts a short-lived outbound connect, promoting it to tried on
// success or icing it on failure. It runs until ctx is cancelled.
func (b *Book) RunFeeler(ctx context.Context, dialer Dialer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.feelOnce(ctx, dialer)
		}
	}
}

func (b *Book) feelOnce(ctx context.Context, dialer Dialer) {
	candidate, ok := b.GetNewRandom()
	if !ok {
		return
	}
	if !b.Eligible(candidate.Address) {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := dialer.DialProbe(probeCtx, candidate.Address); err != nil {
		b.RemoveFromTried(candidate.Address, true)
		return
	}
	b.AddToTried(candidate.Address)
}
