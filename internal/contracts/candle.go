package contracts

import "time"

// Timeframe is a candle resolution.
type Timeframe string

const (
	Timeframe1m Timeframe = "1m"
	Timeframe5m Timeframe = "5m"
	Timeframe1d Timeframe = "1d"
)

// Valid reports whether t is a supported resolution.
func (t Timeframe) Valid() bool {
	return t == Timeframe1m || t == Timeframe5m || t == Timeframe1d
}

// Duration returns the bar width.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Candle is one OHLCV bar. Series are always ordered ascending by Time.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Range returns the high-low spread of the bar.
func (c Candle) Range() float64 {
	return c.High - c.Low
}
