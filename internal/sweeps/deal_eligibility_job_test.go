package sweeps

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/ovenfresh/storefront-cart/internal/cart"
)

type fakeDealCart struct {
	evicted []cart.LineItem
	err     error
	calls   int
}

func (f *fakeDealCart) EnforceDealEligibility(ctx context.Context) ([]cart.LineItem, error) {
	f.calls++
	return f.evicted, f.err
}

func TestDealEligibilityJobDelegates(t *testing.T) {
	store := &fakeDealCart{evicted: []cart.LineItem{{ID: uuid.New()}}}
	job, err := NewDealEligibilityJob(DealEligibilityJobParams{
		Logger: testLogger(),
		Cart:   store,
	})
	if err != nil {
		t.Fatalf("NewDealEligibilityJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("eligibility pass ran %d times, want 1", store.calls)
	}
}

func TestDealEligibilityJobSurfacesErrors(t *testing.T) {
	store := &fakeDealCart{err: errors.New("storage unavailable")}
	job, err := NewDealEligibilityJob(DealEligibilityJobParams{
		Logger: testLogger(),
		Cart:   store,
	})
	if err != nil {
		t.Fatalf("NewDealEligibilityJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected the pass error to surface")
	}
}

func TestDealEligibilityJobValidation(t *testing.T) {
	if _, err := NewDealEligibilityJob(DealEligibilityJobParams{Cart: &fakeDealCart{}}); err == nil {
		t.Fatal("expected error for missing logger")
	}
	if _, err := NewDealEligibilityJob(DealEligibilityJobParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error for missing cart")
	}
}
