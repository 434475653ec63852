package services

import (
	"context"
	"math"

	"github.com/adreel/adreel-api/pkg/db/queries"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CostTracker prices rendered video and adds it to the owner's usage totals.
type CostTracker struct {
	PerSecond float64
	record    func(ctx context.Context, userID uuid.UUID, cost float64) error
}

func NewCostTracker(perSecond float64) *CostTracker {
	return &CostTracker{PerSecond: perSecond, record: queries.IncrementUserUsage}
}

// Estimate prices seconds of rendered footage, rounded to cents.
func (t *CostTracker) Estimate(seconds float64) float64 {
	if seconds <= 0 || t.PerSecond <= 0 {
		return 0
	}
	return math.Round(seconds*t.PerSecond*100) / 100
}

// Record adds one generation and its cost to the user's totals.
func (t *CostTracker) Record(ctx context.Context, userID uuid.UUID, cost float64) error {
	if err := t.record(ctx, userID, cost); err != nil {
		log.Errorf("CostTracker: failed to record %.2f for user %s: %v", cost, userID, err)
		return err
	}
	log.Debugf("CostTracker: recorded %.2f for user %s", cost, userID)
	return nil
}
