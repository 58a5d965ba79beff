package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ovenfresh/storefront-cart/internal/catalog"
	"github.com/ovenfresh/storefront-cart/internal/notify"
	pkgerrors "github.com/ovenfresh/storefront-cart/pkg/errors"
	"github.com/ovenfresh/storefront-cart/pkg/kv"
	"github.com/shopspring/decimal"
)

type storeFixture struct {
	store    *Store
	kv       *kv.MemoryStore
	recorder *notify.Recorder
	changes  int
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	fx := &storeFixture{
		kv:       kv.NewMemory(),
		recorder: &notify.Recorder{},
	}
	persister, err := NewPersister(fx.kv, testLogger(), "cart:active", "cart:saved")
	if err != nil {
		t.Fatalf("NewPersister: %v", err)
	}
	store, err := NewStore(StoreParams{
		Persister: persister,
		Notifier:  fx.recorder,
		Logger:    testLogger(),
		OnChange:  func() { fx.changes++ },
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	fx.store = store
	return fx
}

func standardCandidate() Candidate {
	return Candidate{
		Product: catalog.Product{ID: "prod-1", Name: "Chocolate Truffle", BasePrice: dec("500")},
		Variant: &catalog.Variant{ID: "var-1kg", Label: "1kg", Price: dec("500")},
		Flavor:  &catalog.Flavor{ID: "fl-choc", Name: "Chocolate"},
		Tier:    "2-tier",
		Slot: &DeliverySlot{
			Date:        time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			SlotID:      "slot-am",
			DisplayTime: "9am - 12pm",
		},
		Quantity: 1,
	}
}

func dealCandidate() Candidate {
	return Candidate{
		Product:  catalog.Product{ID: "deal-prod", Name: "Mini Brownie", BasePrice: dec("249")},
		Quantity: 1,
		Deal:     &Deal{ID: "deal-7", Threshold: dec("1000"), Price: dec("99")},
	}
}

func TestAddThenDuplicateRejected(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	outcome, err := fx.store.Add(ctx, standardCandidate())
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	if outcome.SlotDiffers {
		t.Fatal("first add flagged as slot variant")
	}

	if _, err := fx.store.Add(ctx, standardCandidate()); !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("duplicate add: err = %v, want conflict", err)
	}

	summary := fx.store.Summary()
	if summary.TotalItems != 1 {
		t.Fatalf("TotalItems = %d, want 1", summary.TotalItems)
	}
	if !summary.TotalPrice.Equal(dec("500")) {
		t.Fatalf("TotalPrice = %s, want 500", summary.TotalPrice)
	}

	notices := fx.recorder.Notices()
	if len(notices) != 1 {
		t.Fatalf("got %d notices, want the duplicate notice only", len(notices))
	}
	if notices[0].Kind != notify.KindInfo || notices[0].Action != "view-cart" {
		t.Fatalf("unexpected notice %+v", notices[0])
	}
}

func TestAddSlotVariantKeptSeparate(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	if _, err := fx.store.Add(ctx, standardCandidate()); err != nil {
		t.Fatalf("first add: %v", err)
	}

	variant := standardCandidate()
	variant.Slot = &DeliverySlot{
		Date:        time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		SlotID:      "slot-pm",
		DisplayTime: "4pm - 7pm",
	}
	outcome, err := fx.store.Add(ctx, variant)
	if err != nil {
		t.Fatalf("slot-variant add: %v", err)
	}
	if !outcome.SlotDiffers {
		t.Fatal("expected SlotDiffers on the second add")
	}

	if got := fx.store.Summary().TotalItems; got != 2 {
		t.Fatalf("TotalItems = %d, want 2 separate lines", got)
	}
}

func TestAddDealPinsQuantity(t *testing.T) {
	fx := newStoreFixture(t)

	candidate := dealCandidate()
	candidate.Quantity = 5
	outcome, err := fx.store.Add(context.Background(), candidate)
	if err != nil {
		t.Fatalf("add deal: %v", err)
	}
	if outcome.Item.Quantity != 1 {
		t.Fatalf("deal quantity = %d, want pinned to 1", outcome.Item.Quantity)
	}
	if !outcome.Item.TotalPrice.Equal(dec("99")) {
		t.Fatalf("deal total = %s, want the deal price", outcome.Item.TotalPrice)
	}
}

func TestAddDealTwiceRejected(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	if _, err := fx.store.Add(ctx, dealCandidate()); err != nil {
		t.Fatalf("first deal add: %v", err)
	}
	if _, err := fx.store.Add(ctx, dealCandidate()); !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("second deal add: err = %v, want conflict", err)
	}

	notices := fx.recorder.Notices()
	if len(notices) != 1 || notices[0].Kind != notify.KindWarning {
		t.Fatalf("expected one warning notice, got %+v", notices)
	}
}

func TestAddValidation(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	zero := standardCandidate()
	zero.Quantity = 0
	if _, err := fx.store.Add(ctx, zero); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("zero quantity: err = %v, want validation", err)
	}

	over := standardCandidate()
	over.Quantity = 100
	if _, err := fx.store.Add(ctx, over); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("quantity over the ceiling: err = %v, want validation", err)
	}

	noProduct := standardCandidate()
	noProduct.Product.ID = ""
	if _, err := fx.store.Add(ctx, noProduct); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("missing product ref: err = %v, want validation", err)
	}

	badDeal := dealCandidate()
	badDeal.Deal.Price = decimal.Zero
	if _, err := fx.store.Add(ctx, badDeal); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("non-positive deal price: err = %v, want validation", err)
	}
}

func TestUpdateQuantityRecomputesTotal(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	outcome, err := fx.store.Add(ctx, standardCandidate())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := fx.store.UpdateQuantity(ctx, outcome.Item.ID, 3); err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}

	summary := fx.store.Summary()
	if summary.TotalItems != 3 {
		t.Fatalf("TotalItems = %d, want 3", summary.TotalItems)
	}
	if !summary.TotalPrice.Equal(dec("1500")) {
		t.Fatalf("TotalPrice = %s, want 1500", summary.TotalPrice)
	}
}

func TestUpdateQuantityZeroRemoves(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	outcome, err := fx.store.Add(ctx, standardCandidate())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := fx.store.UpdateQuantity(ctx, outcome.Item.ID, 0); err != nil {
		t.Fatalf("UpdateQuantity(0): %v", err)
	}
	if got := fx.store.Summary().TotalItems; got != 0 {
		t.Fatalf("TotalItems = %d, want 0 after quantity-zero removal", got)
	}
}

func TestUpdateQuantityDealRejected(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	outcome, err := fx.store.Add(ctx, dealCandidate())
	if err != nil {
		t.Fatalf("add deal: %v", err)
	}
	if err := fx.store.UpdateQuantity(ctx, outcome.Item.ID, 2); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("deal quantity change: err = %v, want validation", err)
	}
	if err := fx.store.UpdateQuantity(ctx, outcome.Item.ID, 1); err != nil {
		t.Fatalf("deal quantity 1 must be accepted: %v", err)
	}
}

func TestRemoveUnknownAndInFlight(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	unknown := uuid.New()
	if err := fx.store.Remove(ctx, unknown); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("remove unknown: err = %v, want not found", err)
	}

	// A repeated invocation arriving while the first one's notification is
	// still pending stays silent instead of erroring.
	pending := uuid.New()
	fx.store.inFlight[pending] = struct{}{}
	if err := fx.store.Remove(ctx, pending); err != nil {
		t.Fatalf("in-flight repeat: %v", err)
	}
	if got := len(fx.recorder.Notices()); got != 0 {
		t.Fatalf("in-flight repeat produced %d notices, want none", got)
	}
}

func TestRemoveNotifiesOnce(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	outcome, err := fx.store.Add(ctx, standardCandidate())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := fx.store.Remove(ctx, outcome.Item.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	notices := fx.recorder.Notices()
	if len(notices) != 1 || notices[0].Kind != notify.KindSuccess {
		t.Fatalf("expected one success notice, got %+v", notices)
	}
}

func TestSaveForLaterAndMoveBack(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	outcome, err := fx.store.Add(ctx, standardCandidate())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := fx.store.SaveForLater(ctx, outcome.Item.ID); err != nil {
		t.Fatalf("SaveForLater: %v", err)
	}

	active, saved := fx.store.Snapshot()
	if len(active) != 0 || len(saved) != 1 {
		t.Fatalf("after save: active=%d saved=%d", len(active), len(saved))
	}
	if saved[0].SavedAt.IsZero() {
		t.Fatal("SavedAt not stamped")
	}

	if err := fx.store.MoveToCart(ctx, saved[0].ID); err != nil {
		t.Fatalf("MoveToCart: %v", err)
	}
	active, saved = fx.store.Snapshot()
	if len(active) != 1 || len(saved) != 0 {
		t.Fatalf("after move: active=%d saved=%d", len(active), len(saved))
	}
	if active[0].ID == outcome.Item.ID {
		t.Fatal("restored item must carry a fresh id")
	}
}

func TestMoveToCartDuplicateStaysSaved(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	first, err := fx.store.Add(ctx, standardCandidate())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := fx.store.SaveForLater(ctx, first.Item.ID); err != nil {
		t.Fatalf("SaveForLater: %v", err)
	}
	if _, err := fx.store.Add(ctx, standardCandidate()); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	_, saved := fx.store.Snapshot()
	if err := fx.store.MoveToCart(ctx, saved[0].ID); !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("MoveToCart onto a duplicate: err = %v, want conflict", err)
	}

	active, saved := fx.store.Snapshot()
	if len(active) != 1 || len(saved) != 1 {
		t.Fatalf("rejected move changed state: active=%d saved=%d", len(active), len(saved))
	}
}

func TestRemoveSaved(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	outcome, err := fx.store.Add(ctx, standardCandidate())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := fx.store.SaveForLater(ctx, outcome.Item.ID); err != nil {
		t.Fatalf("SaveForLater: %v", err)
	}
	if err := fx.store.RemoveSaved(ctx, outcome.Item.ID); err != nil {
		t.Fatalf("RemoveSaved: %v", err)
	}
	if _, saved := fx.store.Snapshot(); len(saved) != 0 {
		t.Fatalf("saved collection not emptied: %d", len(saved))
	}
}

func TestMutationsPersistBeforeReturning(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	outcome, err := fx.store.Add(ctx, standardCandidate())
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	raw, err := fx.kv.Get(ctx, "cart:active")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	persisted, err := DecodeActive(raw)
	if err != nil {
		t.Fatalf("DecodeActive: %v", err)
	}
	if len(persisted) != 1 || persisted[0].ID != outcome.Item.ID {
		t.Fatalf("durable payload out of step: %d items", len(persisted))
	}
}

func TestSummaryCountsComboUnits(t *testing.T) {
	fx := newStoreFixture(t)

	candidate := standardCandidate()
	candidate.Combos = []ComboSelection{
		{AddOnID: "candles", Quantity: 2, ListPrice: dec("50")},
		{AddOnID: "card", Quantity: 1, ListPrice: dec("30")},
	}
	if _, err := fx.store.Add(context.Background(), candidate); err != nil {
		t.Fatalf("add: %v", err)
	}

	summary := fx.store.Summary()
	if summary.TotalCombos != 3 {
		t.Fatalf("TotalCombos = %d, want 3", summary.TotalCombos)
	}
	// 500 + 50*2 + 30
	if !summary.TotalPrice.Equal(dec("630")) {
		t.Fatalf("TotalPrice = %s, want 630", summary.TotalPrice)
	}
}

func TestSnapshotDoesNotAliasLiveState(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	if _, err := fx.store.Add(ctx, standardCandidate()); err != nil {
		t.Fatalf("add: %v", err)
	}
	active, _ := fx.store.Snapshot()
	active[0].Quantity = 42
	active[0].Product.Name = "Altered"

	fresh, _ := fx.store.Snapshot()
	if fresh[0].Quantity == 42 || fresh[0].Product.Name == "Altered" {
		t.Fatal("snapshot aliased live state")
	}
}

func TestEnforceDealEligibilityEvictsBelowThreshold(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	anchor, err := fx.store.Add(ctx, standardCandidate())
	if err != nil {
		t.Fatalf("add anchor: %v", err)
	}
	if err := fx.store.UpdateQuantity(ctx, anchor.Item.ID, 3); err != nil {
		t.Fatalf("raise quantity: %v", err)
	}
	if _, err := fx.store.Add(ctx, dealCandidate()); err != nil {
		t.Fatalf("add deal: %v", err)
	}

	// 1500 + 99 comfortably clears the 1000 threshold.
	evicted, err := fx.store.EnforceDealEligibility(ctx)
	if err != nil {
		t.Fatalf("eligibility pass: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("evicted %d items while eligible", len(evicted))
	}

	// Dropping to one unit leaves 500 + 99, below the threshold.
	if err := fx.store.UpdateQuantity(ctx, anchor.Item.ID, 1); err != nil {
		t.Fatalf("lower quantity: %v", err)
	}
	before := len(fx.recorder.Notices())
	evicted, err = fx.store.EnforceDealEligibility(ctx)
	if err != nil {
		t.Fatalf("eligibility pass: %v", err)
	}
	if len(evicted) != 1 || evicted[0].Deal == nil {
		t.Fatalf("evicted = %+v, want the deal item", evicted)
	}

	notices := fx.recorder.Notices()[before:]
	if len(notices) != 1 || notices[0].Kind != notify.KindWarning {
		t.Fatalf("expected one warning notice, got %+v", notices)
	}
	if got := fx.store.Summary().TotalItems; got != 1 {
		t.Fatalf("TotalItems = %d, want the anchor only", got)
	}
}

func TestEnforceDealEligibilityIdempotent(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	if _, err := fx.store.Add(ctx, dealCandidate()); err != nil {
		t.Fatalf("add deal: %v", err)
	}
	if _, err := fx.store.EnforceDealEligibility(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	before := len(fx.recorder.Notices())
	evicted, err := fx.store.EnforceDealEligibility(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("second pass evicted %d items", len(evicted))
	}
	if got := len(fx.recorder.Notices()); got != before {
		t.Fatal("second pass produced another notice")
	}
}

func TestRestoreRepairsAndHeals(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	first := fullItem()
	second := fullItem()
	second.ID = uuid.New()
	drifted := fullItem()
	drifted.ID = uuid.New()
	drifted.Slot.SlotID = "slot-pm"
	drifted.TotalPrice = dec("1") // stale cache from an older build

	payload, err := EncodeActive([]LineItem{first, second, drifted})
	if err != nil {
		t.Fatalf("encode seed: %v", err)
	}
	if err := fx.kv.Set(ctx, "cart:active", payload); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := fx.store.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	active, _ := fx.store.Snapshot()
	if len(active) != 2 {
		t.Fatalf("restored %d items, want duplicates merged into 2", len(active))
	}
	for i := range active {
		if !active[i].TotalPrice.Equal(ComputeTotal(&active[i])) {
			t.Fatalf("item %d total not healed: %s", i, active[i].TotalPrice)
		}
	}

	// The repaired state must have been flushed back.
	raw, err := fx.kv.Get(ctx, "cart:active")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	persisted, err := DecodeActive(raw)
	if err != nil {
		t.Fatalf("decode persisted: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("durable payload holds %d items, want 2", len(persisted))
	}
}

func TestRestoreNeverSweeps(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	expired := fullItem()
	expired.Slot.Date = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deal := LineItem{
		ID:       uuid.New(),
		Product:  catalog.Product{ID: "deal-prod", Name: "Mini Brownie", BasePrice: dec("249")},
		Quantity: 1,
		AddedAt:  time.Now().UTC(),
		Deal:     &Deal{ID: "deal-7", Threshold: dec("100000"), Price: dec("99")},
	}
	deal.TotalPrice = ComputeTotal(&deal)

	payload, err := EncodeActive([]LineItem{expired, deal})
	if err != nil {
		t.Fatalf("encode seed: %v", err)
	}
	if err := fx.kv.Set(ctx, "cart:active", payload); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := fx.store.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	active, _ := fx.store.Snapshot()
	if len(active) != 2 {
		t.Fatalf("restore evicted items: %d left, want 2", len(active))
	}
	if got := len(fx.recorder.Notices()); got != 0 {
		t.Fatalf("restore produced %d notices, want none", got)
	}
}

func TestApplySlotRepairRewritesInPlace(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	candidate := standardCandidate()
	candidate.Slot.Date = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	candidate.Slot.PinCode = "560001"
	outcome, err := fx.store.Add(ctx, candidate)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	expired := fx.store.ItemsWithExpiredSlots(now)
	if len(expired) != 1 {
		t.Fatalf("expired = %d items, want 1", len(expired))
	}

	next := catalog.Slot{
		Date:        time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC),
		SlotID:      "slot-pm",
		DisplayTime: "4pm - 7pm",
	}
	applied, err := fx.store.ApplySlotRepair(ctx, outcome.Item.ID, "slot-am", next, now)
	if err != nil {
		t.Fatalf("ApplySlotRepair: %v", err)
	}
	if !applied {
		t.Fatal("repair not applied")
	}

	active, _ := fx.store.Snapshot()
	if active[0].Slot.SlotID != "slot-pm" {
		t.Fatalf("slot id = %s, want slot-pm", active[0].Slot.SlotID)
	}
	if active[0].Slot.PinCode != "560001" {
		t.Fatal("pin code lost during repair")
	}
	if len(fx.store.ItemsWithExpiredSlots(now)) != 0 {
		t.Fatal("item still reported expired after repair")
	}
}

func TestApplySlotRepairDropsStaleTargets(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	next := catalog.Slot{Date: time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC), SlotID: "slot-pm"}

	// Unknown id.
	applied, err := fx.store.ApplySlotRepair(ctx, uuid.New(), "slot-am", next, now)
	if err != nil || applied {
		t.Fatalf("unknown id: applied=%v err=%v", applied, err)
	}

	// Slot changed since the sweep observed it.
	candidate := standardCandidate()
	candidate.Slot.Date = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	outcome, err := fx.store.Add(ctx, candidate)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	applied, err = fx.store.ApplySlotRepair(ctx, outcome.Item.ID, "some-other-slot", next, now)
	if err != nil || applied {
		t.Fatalf("mismatched slot: applied=%v err=%v", applied, err)
	}

	// No longer expired.
	applied, err = fx.store.ApplySlotRepair(ctx, outcome.Item.ID, "slot-am", next,
		time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	if err != nil || applied {
		t.Fatalf("unexpired slot: applied=%v err=%v", applied, err)
	}
}

func TestPurgeExpiredSlotItem(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	candidate := standardCandidate()
	candidate.Slot.Date = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	outcome, err := fx.store.Add(ctx, candidate)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	purged, err := fx.store.PurgeExpiredSlotItem(ctx, outcome.Item.ID, "slot-am", now)
	if err != nil {
		t.Fatalf("PurgeExpiredSlotItem: %v", err)
	}
	if !purged {
		t.Fatal("item not purged")
	}
	if got := fx.store.Summary().TotalItems; got != 0 {
		t.Fatalf("TotalItems = %d after purge", got)
	}

	// Repeat is a no-op.
	purged, err = fx.store.PurgeExpiredSlotItem(ctx, outcome.Item.ID, "slot-am", now)
	if err != nil || purged {
		t.Fatalf("repeat purge: purged=%v err=%v", purged, err)
	}
}

func TestItemsWithExpiredSlotsSkipsDeals(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	if _, err := fx.store.Add(ctx, dealCandidate()); err != nil {
		t.Fatalf("add deal: %v", err)
	}
	got := fx.store.ItemsWithExpiredSlots(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	if len(got) != 0 {
		t.Fatalf("deal item reported for slot repair: %d", len(got))
	}
}

func TestOnChangeFiresOnValueMutations(t *testing.T) {
	fx := newStoreFixture(t)
	ctx := context.Background()

	outcome, err := fx.store.Add(ctx, standardCandidate())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := fx.store.UpdateQuantity(ctx, outcome.Item.ID, 2); err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if err := fx.store.Remove(ctx, outcome.Item.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if fx.changes != 3 {
		t.Fatalf("onChange fired %d times, want 3", fx.changes)
	}
}

type fakeProductSource struct {
	products map[string]catalog.Product
	variants map[string]catalog.Variant
	err      error
}

func (f *fakeProductSource) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	product, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	return &product, nil
}

func (f *fakeProductSource) GetVariant(ctx context.Context, productID, variantID string) (*catalog.Variant, error) {
	if f.err != nil {
		return nil, f.err
	}
	variant, ok := f.variants[variantID]
	if !ok {
		return nil, nil
	}
	return &variant, nil
}

func newCatalogStoreFixture(t *testing.T, source catalog.ProductSource) *storeFixture {
	t.Helper()
	fx := &storeFixture{
		kv:       kv.NewMemory(),
		recorder: &notify.Recorder{},
	}
	persister, err := NewPersister(fx.kv, testLogger(), "cart:active", "cart:saved")
	if err != nil {
		t.Fatalf("NewPersister: %v", err)
	}
	store, err := NewStore(StoreParams{
		Persister: persister,
		Notifier:  fx.recorder,
		Logger:    testLogger(),
		Products:  source,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	fx.store = store
	return fx
}

func TestAddRefreshesCatalogSnapshot(t *testing.T) {
	source := &fakeProductSource{
		products: map[string]catalog.Product{
			"prod-1": {ID: "prod-1", Name: "Chocolate Truffle", BasePrice: dec("550")},
		},
		variants: map[string]catalog.Variant{
			"var-1kg": {ID: "var-1kg", Label: "1kg", Price: dec("550"), DiscountedPrice: decPtr("495")},
		},
	}
	fx := newCatalogStoreFixture(t, source)

	// The candidate carries a stale snapshot with no variant discount.
	outcome, err := fx.store.Add(context.Background(), standardCandidate())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !outcome.Item.TotalPrice.Equal(dec("495")) {
		t.Fatalf("TotalPrice = %s, want the refreshed variant discount 495", outcome.Item.TotalPrice)
	}
}

func TestAddKeepsSnapshotWhenCatalogUnreachable(t *testing.T) {
	source := &fakeProductSource{err: errors.New("catalog unavailable")}
	fx := newCatalogStoreFixture(t, source)

	outcome, err := fx.store.Add(context.Background(), standardCandidate())
	if err != nil {
		t.Fatalf("add must not fail on a catalog outage: %v", err)
	}
	if !outcome.Item.TotalPrice.Equal(dec("500")) {
		t.Fatalf("TotalPrice = %s, want the carried snapshot price 500", outcome.Item.TotalPrice)
	}
}

type failingStore struct {
	kv.Store
	failSet bool
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errors.New("storage unavailable")
	}
	return f.Store.Set(ctx, key, value)
}

func TestAddSurfacesPersistFailure(t *testing.T) {
	backing := &failingStore{Store: kv.NewMemory(), failSet: true}
	persister, err := NewPersister(backing, testLogger(), "cart:active", "cart:saved")
	if err != nil {
		t.Fatalf("NewPersister: %v", err)
	}
	store, err := NewStore(StoreParams{
		Persister: persister,
		Notifier:  &notify.Recorder{},
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if _, err := store.Add(context.Background(), standardCandidate()); !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("err = %v, want dependency failure", err)
	}
}
