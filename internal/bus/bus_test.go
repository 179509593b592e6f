package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/pkg/config"
	"github.com/zerotrading/zero/pkg/logger"
	"github.com/zerotrading/zero/pkg/redis"
)

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "key:active_candidates:H30", CandidatesKey(contracts.Horizon30))
	assert.Equal(t, "key:opportunity_rank:HWEEK", RankKey(contracts.HorizonWeek))
	assert.Equal(t, "key:health:scanner", HealthKey("scanner"))
}

func TestPerHorizonKeysDistinct(t *testing.T) {
	horizons := contracts.AllHorizons()
	seen := map[string]bool{}
	for _, h := range horizons {
		seen[CandidatesKey(h)] = true
		seen[RankKey(h)] = true
	}
	// one candidates key and one rank key per horizon, no collisions
	assert.Len(t, seen, len(horizons)*2)
}

func TestNewRequiresRedis(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{Enabled: false},
		Env:   "test",
	}
	client, err := redis.New(cfg)
	require.NoError(t, err)

	_, err = New(client, logger.New(cfg))
	assert.Error(t, err, "bus must refuse a disabled redis client")
}
