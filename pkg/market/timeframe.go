package market

import (
	"fmt"
	"time"
)

// Timeframe is a candle aggregation period. The set is closed: only the
// values below are valid, and all window arithmetic is duration-based UTC.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe3m  Timeframe = "3m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

type timeframeMeta struct {
	duration time.Duration
	interval string // Bybit API interval value
}

var timeframes = map[Timeframe]timeframeMeta{
	Timeframe1m:  {time.Minute, "1"},
	Timeframe3m:  {3 * time.Minute, "3"},
	Timeframe5m:  {5 * time.Minute, "5"},
	Timeframe15m: {15 * time.Minute, "15"},
	Timeframe30m: {30 * time.Minute, "30"},
	Timeframe1h:  {time.Hour, "60"},
	Timeframe4h:  {4 * time.Hour, "240"},
	Timeframe1d:  {24 * time.Hour, "D"},
}

// ParseTimeframe parses a label like "15m" or "1h" into a Timeframe.
func ParseTimeframe(label string) (Timeframe, error) {
	tf := Timeframe(label)
	if _, ok := timeframes[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q", label)
	}
	return tf, nil
}

// Duration returns the fixed period of one candle at this timeframe.
func (tf Timeframe) Duration() time.Duration {
	return timeframes[tf].duration
}

// Interval returns the Bybit API interval value (e.g. "1h" -> "60").
func (tf Timeframe) Interval() string {
	return timeframes[tf].interval
}

// Align truncates t down to the timeframe's period boundary in UTC.
func (tf Timeframe) Align(t time.Time) time.Time {
	return t.UTC().Truncate(tf.Duration())
}

func (tf Timeframe) String() string { return string(tf) }
