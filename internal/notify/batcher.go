package notify

import (
	"context"
	"sync"
	"time"

	"github.com/ovenfresh/storefront-cart/pkg/logger"
)

// Batcher suppresses repeat notices: an identical notice within the
// cool-down window is dropped instead of re-delivered. Notices that differ
// in body are distinct even under the same title, so successive evictions
// of different items all reach the user. Cool-down state is owned by the
// instance so independent carts do not interfere.
type Batcher struct {
	sink     Notifier
	logg     *logger.Logger
	cooldown time.Duration

	mu       sync.Mutex
	lastFire map[string]time.Time
	now      func() time.Time
}

// BatcherParams configure a Batcher.
type BatcherParams struct {
	Sink     Notifier
	Logger   *logger.Logger
	Cooldown time.Duration
}

func NewBatcher(params BatcherParams) *Batcher {
	cooldown := params.Cooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	return &Batcher{
		sink:     params.Sink,
		logg:     params.Logger,
		cooldown: cooldown,
		lastFire: map[string]time.Time{},
		now:      time.Now,
	}
}

// Notify delivers n unless an identical notice fired within the cool-down.
func (b *Batcher) Notify(n Notice) {
	if b.sink == nil {
		return
	}
	key := n.Title + "\x00" + n.Body
	b.mu.Lock()
	now := b.now()
	if last, ok := b.lastFire[key]; ok && now.Sub(last) < b.cooldown {
		b.mu.Unlock()
		return
	}
	b.lastFire[key] = now
	b.mu.Unlock()

	b.dispatch(n)
}

func (b *Batcher) dispatch(n Notice) {
	defer func() {
		if rec := recover(); rec != nil && b.logg != nil {
			ctx := b.logg.WithField(context.Background(), "notice_title", n.Title)
			b.logg.Warn(ctx, "notification sink panicked; notice dropped")
		}
	}()
	b.sink.Notify(n)
}
