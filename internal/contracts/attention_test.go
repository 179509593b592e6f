package contracts

import "testing"

func TestAttentionState_AllowsHorizon(t *testing.T) {
	tests := []struct {
		bucket  AttentionBucket
		horizon Horizon
		want    bool
	}{
		{BucketStable, Horizon30, true},
		{BucketStable, Horizon2H, true},
		{BucketStable, HorizonDay, true},
		{BucketStable, HorizonWeek, true},

		{BucketUnstable, Horizon30, true},
		{BucketUnstable, Horizon2H, true},
		{BucketUnstable, HorizonDay, true},
		{BucketUnstable, HorizonWeek, false},

		{BucketChaotic, Horizon30, true},
		{BucketChaotic, Horizon2H, false},
		{BucketChaotic, HorizonDay, false},
		{BucketChaotic, HorizonWeek, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.bucket)+"/"+string(tt.horizon), func(t *testing.T) {
			a := AttentionState{Bucket: tt.bucket}
			if got := a.AllowsHorizon(tt.horizon); got != tt.want {
				t.Errorf("AllowsHorizon(%s) under %s = %v, want %v", tt.horizon, tt.bucket, got, tt.want)
			}
		})
	}
}

func TestCalibrationBucketKey(t *testing.T) {
	got := CalibrationBucketKey(Horizon30, StateGreen, BucketStable)
	want := "H30_GREEN_STABLE"
	if got != want {
		t.Errorf("CalibrationBucketKey() = %q, want %q", got, want)
	}
}
