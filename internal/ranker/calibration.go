package ranker

import (
	"context"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/pkg/logger"
)

// BusCalibration reads the shrink feed left at key:calibration_state. A
// missing document, an unreadable bus, or an unknown bucket all come back
// ok=false so the caller leaves confidence untouched.
type BusCalibration struct {
	kv  contracts.KV
	log *logger.Logger
}

var _ contracts.CalibrationSource = (*BusCalibration)(nil)

func NewBusCalibration(kv contracts.KV, log *logger.Logger) *BusCalibration {
	return &BusCalibration{kv: kv, log: log}
}

// Shrink returns the bucket's factor, falling back to the global factor
// when the specific bucket has no data yet.
func (c *BusCalibration) Shrink(ctx context.Context, h contracts.Horizon, s contracts.State, b contracts.AttentionBucket) (float64, bool) {
	var doc contracts.CalibrationState
	found, err := c.kv.Get(ctx, bus.KeyCalibrationState, &doc)
	if err != nil {
		c.log.WithError(err).Warn("Calibration read failed, skipping shrink")
		return 0, false
	}
	if !found {
		return 0, false
	}

	if bucket, ok := doc.Buckets[contracts.CalibrationBucketKey(h, s, b)]; ok {
		return clampShrink(bucket.ShrinkFactor), true
	}
	if doc.GlobalStats.GlobalShrink > 0 {
		return clampShrink(doc.GlobalStats.GlobalShrink), true
	}
	return 0, false
}

// clampShrink enforces the shrink-only contract: factors never exceed 1.0.
func clampShrink(f float64) float64 {
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}
