package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ovenfresh/storefront-cart/internal/catalog"
	"github.com/ovenfresh/storefront-cart/internal/notify"
	pkgerrors "github.com/ovenfresh/storefront-cart/pkg/errors"
	"github.com/ovenfresh/storefront-cart/pkg/logger"
	"github.com/shopspring/decimal"
)

const maxLineQuantity = 99

// Store owns the active and saved-for-later collections. Every mutation
// leaves the collection invariants intact and is flushed to durable
// storage before returning; there is no write-behind buffering.
type Store struct {
	mu     sync.Mutex
	active []LineItem
	saved  []SavedItem

	persister *Persister
	notifier  notify.Notifier
	logg      *logger.Logger
	products  catalog.ProductSource
	validate  *validator.Validate
	onChange  func()

	// inFlight tracks ids whose removal/restore notification has not fired
	// yet, so a double-invoked operation stays silent the second time.
	inFlight map[uuid.UUID]struct{}

	now   func() time.Time
	newID func() uuid.UUID
}

// StoreParams configure a Store.
type StoreParams struct {
	Persister *Persister
	Notifier  notify.Notifier
	Logger    *logger.Logger

	// Products, when set, refreshes a candidate's catalog snapshot at add
	// time so a stale client-side price cannot enter the cart.
	Products catalog.ProductSource

	// OnChange fires after any mutation that can move the aggregate cart
	// value; the deal eligibility monitor hangs off it.
	OnChange func()
}

// NewStore builds a cart store backed by the provided stack.
func NewStore(params StoreParams) (*Store, error) {
	if params.Persister == nil {
		return nil, fmt.Errorf("persister required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Store{
		persister: params.Persister,
		notifier:  params.Notifier,
		logg:      params.Logger,
		products:  params.Products,
		validate:  validator.New(),
		onChange:  params.OnChange,
		inFlight:  map[uuid.UUID]struct{}{},
		now:       time.Now,
		newID:     uuid.New,
	}, nil
}

// Candidate is a requested addition before it becomes a line item.
type Candidate struct {
	Product     catalog.Product
	Variant     *catalog.Variant
	Flavor      *catalog.Flavor
	Tier        string
	Combos      []ComboSelection `validate:"dive"`
	Slot        *DeliverySlot
	CakeMessage string `validate:"max=200"`
	Quantity    int    `validate:"required,gt=0,lte=99"`
	Deal        *Deal
}

// AddOutcome reports a successful addition. SlotDiffers is set when the
// candidate matched an existing item on everything but its delivery slot
// and was kept as a separate line.
type AddOutcome struct {
	Item        LineItem
	SlotDiffers bool
}

// Add resolves the candidate against the active collection and inserts it
// unless it collides. Exact duplicates and repeated deals are rejected
// with a user-facing notice; state is unchanged on rejection.
func (s *Store) Add(ctx context.Context, candidate Candidate) (*AddOutcome, error) {
	if err := s.validateCandidate(&candidate); err != nil {
		return nil, err
	}
	s.refreshSnapshot(ctx, &candidate)

	item := cloneItem(&LineItem{
		Product:     candidate.Product,
		Variant:     candidate.Variant,
		Flavor:      candidate.Flavor,
		Tier:        candidate.Tier,
		Combos:      candidate.Combos,
		Slot:        candidate.Slot,
		CakeMessage: candidate.CakeMessage,
		Quantity:    candidate.Quantity,
		Deal:        candidate.Deal,
	})
	item.ID = s.newID()
	item.AddedAt = s.now()
	if item.Kind() == ItemKindDeal {
		item.Quantity = 1
	}
	item.TotalPrice = ComputeTotal(&item)

	slotDiffers := false

	s.mu.Lock()
	if item.Kind() == ItemKindDeal {
		if existing := s.findDealLocked(item.Deal.ID); existing != nil {
			s.mu.Unlock()
			s.notify(notify.Notice{
				Kind:   notify.KindWarning,
				Title:  "Deal already in cart",
				Body:   existing.Name() + " is already applied to this cart.",
				Action: "view-cart",
			})
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "deal already present")
		}
	} else {
		verdict, collision := Classify(&item, s.active)
		switch verdict {
		case VerdictExactDuplicate:
			s.mu.Unlock()
			s.notify(notify.Notice{
				Kind:   notify.KindInfo,
				Title:  "Already in your cart",
				Body:   collision.Name() + " with the same configuration is already in your cart.",
				Action: "view-cart",
			})
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "identical configuration already in cart")
		case VerdictSlotVariant:
			slotDiffers = true
		}
	}

	s.active = append(s.active, item)
	s.assertUniqueIDsLocked(ctx)
	persistErr := s.persistActiveLocked(ctx)
	s.mu.Unlock()

	if persistErr != nil {
		return nil, persistErr
	}
	if slotDiffers {
		s.notify(notify.Notice{
			Kind:  notify.KindInfo,
			Title: "Added as a separate item",
			Body:  item.Name() + " was added as its own line because its delivery slot differs.",
		})
	}
	s.changed()
	return &AddOutcome{Item: cloneItem(&item), SlotDiffers: slotDiffers}, nil
}

// UpdateQuantity sets an item's quantity and recomputes its total. A
// non-positive quantity routes to removal. Deal items only accept 1.
func (s *Store) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity > maxLineQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("quantity cannot exceed %d", maxLineQuantity))
	}

	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	item := &s.active[idx]
	if item.Kind() == ItemKindDeal && quantity != 1 {
		s.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeValidation, "deal items are fixed at quantity 1")
	}
	if quantity <= 0 {
		s.mu.Unlock()
		return s.Remove(ctx, id)
	}
	item.Quantity = quantity
	item.TotalPrice = ComputeTotal(item)
	persistErr := s.persistActiveLocked(ctx)
	s.mu.Unlock()

	if persistErr != nil {
		return persistErr
	}
	s.changed()
	return nil
}

// Remove deletes an item from the active collection. A repeat invocation
// for the same id while its notification is pending is a silent no-op.
func (s *Store) Remove(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		_, pending := s.inFlight[id]
		s.mu.Unlock()
		if pending {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	item := s.active[idx]
	s.active = append(s.active[:idx], s.active[idx+1:]...)
	s.inFlight[id] = struct{}{}
	persistErr := s.persistActiveLocked(ctx)
	s.mu.Unlock()

	if persistErr != nil {
		s.clearInFlight(id)
		return persistErr
	}
	s.notify(notify.Notice{
		Kind:  notify.KindSuccess,
		Title: "Removed from cart",
		Body:  item.Name(),
	})
	s.clearInFlight(id)
	s.changed()
	return nil
}

// Clear empties the active collection.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if len(s.active) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.active = nil
	persistErr := s.persistActiveLocked(ctx)
	s.mu.Unlock()

	if persistErr != nil {
		return persistErr
	}
	s.notify(notify.Notice{Kind: notify.KindInfo, Title: "Cart cleared"})
	s.changed()
	return nil
}

// SaveForLater parks an active item in the saved collection, where it is
// exempt from dedup, pricing, slot, and deal passes.
func (s *Store) SaveForLater(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		_, pending := s.inFlight[id]
		s.mu.Unlock()
		if pending {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	item := s.active[idx]
	s.active = append(s.active[:idx], s.active[idx+1:]...)
	s.saved = append(s.saved, SavedItem{LineItem: item, SavedAt: s.now()})
	s.inFlight[id] = struct{}{}
	persistErr := s.persistBothLocked(ctx)
	s.mu.Unlock()

	if persistErr != nil {
		s.clearInFlight(id)
		return persistErr
	}
	s.notify(notify.Notice{
		Kind:  notify.KindSuccess,
		Title: "Saved for later",
		Body:  item.Name(),
	})
	s.clearInFlight(id)
	s.changed()
	return nil
}

// MoveToCart restores a saved item into the active collection under a new
// id. The restore goes through identity resolution so the uniqueness
// invariants hold; an exact duplicate leaves the item saved.
func (s *Store) MoveToCart(ctx context.Context, savedID uuid.UUID) error {
	s.mu.Lock()
	idx := s.indexOfSavedLocked(savedID)
	if idx < 0 {
		_, pending := s.inFlight[savedID]
		s.mu.Unlock()
		if pending {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "saved item not found")
	}

	item := cloneItem(&s.saved[idx].LineItem)
	item.ID = s.newID()
	item.AddedAt = s.now()
	item.TotalPrice = ComputeTotal(&item)

	if item.Kind() == ItemKindDeal {
		if existing := s.findDealLocked(item.Deal.ID); existing != nil {
			s.mu.Unlock()
			s.notify(notify.Notice{
				Kind:  notify.KindWarning,
				Title: "Deal already in cart",
				Body:  existing.Name() + " is already applied to this cart.",
			})
			return pkgerrors.New(pkgerrors.CodeConflict, "deal already present")
		}
	} else if verdict, collision := Classify(&item, s.active); verdict == VerdictExactDuplicate {
		s.mu.Unlock()
		s.notify(notify.Notice{
			Kind:   notify.KindInfo,
			Title:  "Already in your cart",
			Body:   collision.Name() + " with the same configuration is already in your cart.",
			Action: "view-cart",
		})
		return pkgerrors.New(pkgerrors.CodeConflict, "identical configuration already in cart")
	}

	s.saved = append(s.saved[:idx], s.saved[idx+1:]...)
	s.active = append(s.active, item)
	s.inFlight[savedID] = struct{}{}
	persistErr := s.persistBothLocked(ctx)
	s.mu.Unlock()

	if persistErr != nil {
		s.clearInFlight(savedID)
		return persistErr
	}
	s.notify(notify.Notice{
		Kind:  notify.KindSuccess,
		Title: "Moved to cart",
		Body:  item.Name(),
	})
	s.clearInFlight(savedID)
	s.changed()
	return nil
}

// RemoveSaved deletes an item from the saved collection.
func (s *Store) RemoveSaved(ctx context.Context, savedID uuid.UUID) error {
	s.mu.Lock()
	idx := s.indexOfSavedLocked(savedID)
	if idx < 0 {
		_, pending := s.inFlight[savedID]
		s.mu.Unlock()
		if pending {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "saved item not found")
	}
	item := s.saved[idx]
	s.saved = append(s.saved[:idx], s.saved[idx+1:]...)
	s.inFlight[savedID] = struct{}{}
	persistErr := s.persistSavedLocked(ctx)
	s.mu.Unlock()

	if persistErr != nil {
		s.clearInFlight(savedID)
		return persistErr
	}
	s.notify(notify.Notice{
		Kind:  notify.KindSuccess,
		Title: "Removed saved item",
		Body:  item.Name(),
	})
	s.clearInFlight(savedID)
	return nil
}

// Summary aggregates the active collection for display.
type Summary struct {
	TotalItems  int
	TotalPrice  decimal.Decimal
	TotalCombos int
}

// Summary reports item quantities, the aggregate price, and the number of
// combo add-on units across the active collection.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Summary{TotalPrice: decimal.Zero}
	for i := range s.active {
		item := &s.active[i]
		out.TotalItems += item.Quantity
		out.TotalPrice = out.TotalPrice.Add(item.TotalPrice)
		for _, sel := range item.Combos {
			out.TotalCombos += sel.Quantity
		}
	}
	return out
}

// Snapshot returns deep copies of both collections for checkout
// consumption; the caller cannot alias live state through them.
func (s *Store) Snapshot() ([]LineItem, []SavedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CloneItems(s.active), CloneSaved(s.saved)
}

// Restore loads both collections from durable storage, repairs uniqueness
// violations left by older builds, and heals any cached-total drift. It
// never runs the slot or deal sweeps; those stay on their own timers so a
// spurious first read cannot evict valid items.
func (s *Store) Restore(ctx context.Context) error {
	active, err := s.persister.LoadActive(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore active collection")
	}
	saved, err := s.persister.LoadSaved(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore saved collection")
	}

	repaired, merged := RepairDuplicates(active)
	healed := 0
	for i := range repaired {
		truth := ComputeTotal(&repaired[i])
		if !repaired[i].TotalPrice.Equal(truth) {
			repaired[i].TotalPrice = truth
			healed++
		}
	}

	s.mu.Lock()
	s.active = repaired
	s.saved = saved
	var persistErr error
	if merged > 0 || healed > 0 {
		persistErr = s.persistActiveLocked(ctx)
	}
	s.mu.Unlock()

	if merged > 0 || healed > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"merged_items":  merged,
			"healed_totals": healed,
		})
		s.logg.Warn(logCtx, "cart state repaired on restore")
	}
	return persistErr
}

// EnforceDealEligibility recomputes the aggregate cart value and evicts
// every deal item whose threshold it no longer meets, with one notice
// listing the evicted items. Returns the evicted items.
func (s *Store) EnforceDealEligibility(ctx context.Context) ([]LineItem, error) {
	s.mu.Lock()
	total := decimal.Zero
	for i := range s.active {
		total = total.Add(s.active[i].TotalPrice)
	}

	var evicted []LineItem
	kept := s.active[:0]
	for i := range s.active {
		item := s.active[i]
		if item.Kind() == ItemKindDeal && item.Deal.Threshold.GreaterThan(total) {
			evicted = append(evicted, item)
			continue
		}
		kept = append(kept, item)
	}
	if len(evicted) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	s.active = kept
	persistErr := s.persistActiveLocked(ctx)
	s.mu.Unlock()

	if persistErr != nil {
		return evicted, persistErr
	}

	lines := make([]string, len(evicted))
	for i := range evicted {
		lines[i] = fmt.Sprintf("%s (needs a cart value of at least %s)",
			evicted[i].Name(), evicted[i].Deal.Threshold.String())
	}
	s.notify(notify.Notice{
		Kind:  notify.KindWarning,
		Title: "Deal no longer applies",
		Body:  "Removed: " + strings.Join(lines, "; "),
	})
	s.changed()
	return evicted, nil
}

// ItemsWithExpiredSlots returns copies of the active non-deal items whose
// delivery slot has expired. Deal items are exempt from slot checks.
func (s *Store) ItemsWithExpiredSlots(now time.Time) []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []LineItem
	for i := range s.active {
		item := &s.active[i]
		if item.Kind() == ItemKindDeal {
			continue
		}
		if item.Slot.Expired(now) {
			out = append(out, cloneItem(item))
		}
	}
	return out
}

// ApplySlotRepair rewrites an item's delivery slot in place, carrying the
// pin code over. The target is re-validated under the lock: it must still
// exist, still hold the slot the repair was computed for, and still be
// expired; otherwise the stale repair is dropped.
func (s *Store) ApplySlotRepair(ctx context.Context, id uuid.UUID, currentSlotID string, next catalog.Slot, now time.Time) (bool, error) {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	item := &s.active[idx]
	if item.Kind() == ItemKindDeal || item.Slot == nil ||
		item.Slot.SlotID != currentSlotID || !item.Slot.Expired(now) {
		s.mu.Unlock()
		return false, nil
	}
	// TODO: revalidate pin-code serviceability against the repaired date
	// once the availability service exposes a check for it.
	item.Slot = &DeliverySlot{
		Date:        next.Date,
		SlotID:      next.SlotID,
		DisplayTime: next.DisplayTime,
		PinCode:     item.Slot.PinCode,
	}
	persistErr := s.persistActiveLocked(ctx)
	s.mu.Unlock()

	if persistErr != nil {
		return false, persistErr
	}
	return true, nil
}

// PurgeExpiredSlotItem removes an item whose slot expired and could not be
// repaired, with the same stale-target re-validation as ApplySlotRepair.
func (s *Store) PurgeExpiredSlotItem(ctx context.Context, id uuid.UUID, currentSlotID string, now time.Time) (bool, error) {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	item := &s.active[idx]
	if item.Kind() == ItemKindDeal || item.Slot == nil ||
		item.Slot.SlotID != currentSlotID || !item.Slot.Expired(now) {
		s.mu.Unlock()
		return false, nil
	}
	s.active = append(s.active[:idx], s.active[idx+1:]...)
	persistErr := s.persistActiveLocked(ctx)
	s.mu.Unlock()

	if persistErr != nil {
		return false, persistErr
	}
	s.changed()
	return true, nil
}

// refreshSnapshot swaps the candidate's catalog snapshots for the source's
// current ones. A failed lookup keeps the carried snapshot; an add must not
// fail because the catalog is briefly unreachable.
func (s *Store) refreshSnapshot(ctx context.Context, candidate *Candidate) {
	if s.products == nil {
		return
	}
	product, err := s.products.GetProduct(ctx, candidate.Product.ID)
	if err != nil || product == nil {
		logCtx := s.logg.WithField(ctx, "product_id", candidate.Product.ID)
		s.logg.Warn(logCtx, "catalog lookup failed; keeping the carried product snapshot")
		return
	}
	candidate.Product = *product
	if candidate.Variant == nil {
		return
	}
	variant, err := s.products.GetVariant(ctx, candidate.Product.ID, candidate.Variant.ID)
	if err != nil || variant == nil {
		logCtx := s.logg.WithField(ctx, "variant_id", candidate.Variant.ID)
		s.logg.Warn(logCtx, "catalog lookup failed; keeping the carried variant snapshot")
		return
	}
	candidate.Variant = variant
}

func (s *Store) validateCandidate(candidate *Candidate) error {
	if err := s.validate.Struct(candidate); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart candidate")
	}
	if candidate.Product.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product ref is required")
	}
	if candidate.Variant != nil && candidate.Variant.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant ref is required when a variant is set")
	}
	if deal := candidate.Deal; deal != nil {
		if deal.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "deal id is required")
		}
		if deal.Price.Sign() <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "deal price must be positive")
		}
		if deal.Threshold.Sign() < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "deal threshold cannot be negative")
		}
	}
	return nil
}

func (s *Store) indexOfLocked(id uuid.UUID) int {
	for i := range s.active {
		if s.active[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfSavedLocked(id uuid.UUID) int {
	for i := range s.saved {
		if s.saved[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) findDealLocked(dealID string) *LineItem {
	for i := range s.active {
		if s.active[i].Kind() == ItemKindDeal && s.active[i].Deal.ID == dealID {
			return &s.active[i]
		}
	}
	return nil
}

// assertUniqueIDsLocked surfaces an id collision, which the resolver and
// id generator make impossible; a hit is a programming error and must be
// visible rather than silently corrupting state.
func (s *Store) assertUniqueIDsLocked(ctx context.Context) {
	seen := make(map[uuid.UUID]struct{}, len(s.active))
	for i := range s.active {
		if _, dup := seen[s.active[i].ID]; dup {
			s.logg.Error(s.logg.WithItemID(ctx, s.active[i].ID.String()),
				"invariant violation: duplicate line item id",
				pkgerrors.New(pkgerrors.CodeInternal, "duplicate line item id"))
			return
		}
		seen[s.active[i].ID] = struct{}{}
	}
}

func (s *Store) persistActiveLocked(ctx context.Context) error {
	if err := s.persister.SaveActive(ctx, s.active); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart")
	}
	return nil
}

func (s *Store) persistSavedLocked(ctx context.Context) error {
	if err := s.persister.SaveSaved(ctx, s.saved); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist saved items")
	}
	return nil
}

func (s *Store) persistBothLocked(ctx context.Context) error {
	if err := s.persistActiveLocked(ctx); err != nil {
		return err
	}
	return s.persistSavedLocked(ctx)
}

func (s *Store) clearInFlight(id uuid.UUID) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

func (s *Store) notify(n notify.Notice) {
	if s.notifier != nil {
		s.notifier.Notify(n)
	}
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
