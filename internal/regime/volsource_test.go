package regime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/strategyconfig"
)

type stubCloser struct {
	ticker string
	close  float64
	err    error
}

func (s *stubCloser) LatestClose(_ context.Context, ticker string) (float64, error) {
	s.ticker = ticker
	if s.err != nil {
		return 0, s.err
	}
	return s.close, nil
}

func TestProxySourceScalesClose(t *testing.T) {
	store := &stubCloser{close: 14.2}
	src := NewProxySource(store, strategyconfig.VolatilityProxy{
		ProxySymbol: "VIXY", Scale: 1.25, Elevated: 20, High: 25,
	})

	level, err := src.Level(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 17.75, level, 1e-9)
	assert.Equal(t, "VIXY", store.ticker)
}

func TestProxySourcePropagatesError(t *testing.T) {
	store := &stubCloser{err: contracts.ErrNoData}
	src := NewProxySource(store, strategyconfig.VolatilityProxy{
		ProxySymbol: "VIXY", Scale: 1.0, Elevated: 20, High: 25,
	})

	_, err := src.Level(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrNoData)
	assert.Contains(t, err.Error(), "VIXY")
}
