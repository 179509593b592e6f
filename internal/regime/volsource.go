package regime

import (
	"context"
	"fmt"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/strategyconfig"
)

// latestCloser is the slice of the candle store the proxy read needs.
type latestCloser interface {
	LatestClose(ctx context.Context, ticker string) (float64, error)
}

// ProxySource reads the volatility level as the configured proxy symbol's
// newest 1m close times the scale factor.
type ProxySource struct {
	store latestCloser
	cfg   strategyconfig.VolatilityProxy
}

var _ contracts.VolatilitySource = (*ProxySource)(nil)

// NewProxySource wires the proxy read against the candle store.
func NewProxySource(store latestCloser, cfg strategyconfig.VolatilityProxy) *ProxySource {
	return &ProxySource{store: store, cfg: cfg}
}

// Level returns the scaled proxy level, or an error when no bar is
// available. The caller decides how to fail; this never guesses.
func (p *ProxySource) Level(ctx context.Context) (float64, error) {
	closePrice, err := p.store.LatestClose(ctx, p.cfg.ProxySymbol)
	if err != nil {
		return 0, fmt.Errorf("volatility proxy %s: %w", p.cfg.ProxySymbol, err)
	}
	return closePrice * p.cfg.Scale, nil
}
