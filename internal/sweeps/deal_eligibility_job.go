package sweeps

import (
	"context"
	"fmt"

	"github.com/ovenfresh/storefront-cart/internal/cart"
	"github.com/ovenfresh/storefront-cart/pkg/logger"
	"github.com/ovenfresh/storefront-cart/pkg/metrics"
)

// dealCart is the store surface the eligibility pass needs. The store owns
// the eviction notice; the job only records outcomes.
type dealCart interface {
	EnforceDealEligibility(ctx context.Context) ([]cart.LineItem, error)
}

// DealEligibilityJobParams configure the deal eligibility monitor.
type DealEligibilityJobParams struct {
	Logger  *logger.Logger
	Cart    dealCart
	Metrics *metrics.SweepJobMetrics
}

// NewDealEligibilityJob builds the periodic safety-net pass over deal
// thresholds. The primary trigger is the store's debounced change hook;
// this job catches anything that slipped past it.
func NewDealEligibilityJob(params DealEligibilityJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart access required")
	}
	return &dealEligibilityJob{
		logg:    params.Logger,
		cart:    params.Cart,
		metrics: params.Metrics,
	}, nil
}

type dealEligibilityJob struct {
	logg    *logger.Logger
	cart    dealCart
	metrics *metrics.SweepJobMetrics
}

func (j *dealEligibilityJob) Name() string { return "deal-eligibility" }

func (j *dealEligibilityJob) Run(ctx context.Context) error {
	evicted, err := j.cart.EnforceDealEligibility(ctx)
	if err != nil {
		return fmt.Errorf("enforce deal eligibility: %w", err)
	}
	if len(evicted) > 0 {
		j.metrics.AddEvicted(j.Name(), len(evicted))
	}
	logCtx := j.logg.WithField(ctx, "evicted", len(evicted))
	j.logg.Info(logCtx, "deal eligibility pass complete")
	return nil
}
