package sweeps

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ovenfresh/storefront-cart/internal/cart"
	"github.com/ovenfresh/storefront-cart/internal/catalog"
	"github.com/ovenfresh/storefront-cart/internal/notify"
	pkgerrors "github.com/ovenfresh/storefront-cart/pkg/errors"
	"github.com/ovenfresh/storefront-cart/pkg/logger"
	"github.com/ovenfresh/storefront-cart/pkg/metrics"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
)

const slotLookupBackoff = 500 * time.Millisecond

// slotCart is the store surface the repair pass needs.
type slotCart interface {
	ItemsWithExpiredSlots(now time.Time) []cart.LineItem
	ApplySlotRepair(ctx context.Context, id uuid.UUID, currentSlotID string, next catalog.Slot, now time.Time) (bool, error)
	PurgeExpiredSlotItem(ctx context.Context, id uuid.UUID, currentSlotID string, now time.Time) (bool, error)
}

// SlotRepairJobParams configure the delivery-slot guardian.
type SlotRepairJobParams struct {
	Logger   *logger.Logger
	Cart     slotCart
	Slots    catalog.SlotSource
	Notifier notify.Notifier
	Metrics  *metrics.SweepJobMetrics
	Retries  uint64
}

// NewSlotRepairJob builds the sweep that rewrites expired delivery slots
// in place, purging only items for which no replacement slot exists.
func NewSlotRepairJob(params SlotRepairJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart access required")
	}
	if params.Slots == nil {
		return nil, fmt.Errorf("slot source required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	retries := params.Retries
	if retries == 0 {
		retries = 3
	}
	return &slotRepairJob{
		logg:     params.Logger,
		cart:     params.Cart,
		slots:    params.Slots,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		retries:  retries,
		now:      time.Now,
	}, nil
}

type slotRepairJob struct {
	logg     *logger.Logger
	cart     slotCart
	slots    catalog.SlotSource
	notifier notify.Notifier
	metrics  *metrics.SweepJobMetrics
	retries  uint64
	now      func() time.Time
}

func (j *slotRepairJob) Name() string { return "slot-repair" }

func (j *slotRepairJob) Run(ctx context.Context) error {
	now := j.now()
	expired := j.cart.ItemsWithExpiredSlots(now)
	if len(expired) == 0 {
		return nil
	}

	var errs []error
	repaired := 0
	purged := 0

	for i := range expired {
		item := &expired[i]
		next, err := j.findNextSlot(ctx, item.Slot.Date, item.Slot.SlotID)
		if err != nil {
			// Collaborator down: the item keeps its original slot and
			// stays visible for manual resolution at checkout.
			logCtx := j.logg.WithItemID(ctx, item.ID.String())
			j.logg.Warn(logCtx, "slot lookup failed; leaving expired reservation untouched")
			errs = append(errs, err)
			continue
		}
		if next == nil {
			ok, err := j.cart.PurgeExpiredSlotItem(ctx, item.ID, item.Slot.SlotID, now)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				purged++
			}
			continue
		}
		ok, err := j.cart.ApplySlotRepair(ctx, item.ID, item.Slot.SlotID, *next, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			repaired++
		}
	}

	if repaired > 0 {
		j.metrics.AddRepaired(j.Name(), repaired)
		j.notifier.Notify(notify.Notice{
			Kind:  notify.KindInfo,
			Title: "Delivery slots updated",
			Body:  fmt.Sprintf("%d item(s) were moved to the next available delivery slot.", repaired),
		})
	}
	if purged > 0 {
		j.metrics.AddEvicted(j.Name(), purged)
		j.notifier.Notify(notify.Notice{
			Kind:  notify.KindWarning,
			Title: "Expired delivery slots",
			Body:  fmt.Sprintf("%d item(s) were removed because their delivery slot expired and no replacement was available.", purged),
		})
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired":  len(expired),
		"repaired": repaired,
		"purged":   purged,
	})
	j.logg.Info(logCtx, "slot repair pass complete")
	return multierr.Combine(errs...)
}

func (j *slotRepairJob) findNextSlot(ctx context.Context, after time.Time, excludeSlotID string) (*catalog.Slot, error) {
	var next *catalog.Slot
	backoff := retry.WithMaxRetries(j.retries, retry.NewExponential(slotLookupBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		slot, err := j.slots.FindNextAvailableSlot(ctx, after, excludeSlotID)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
				return retry.RetryableError(err)
			}
			return err
		}
		next = slot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}
