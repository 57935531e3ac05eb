package indicator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"candlesync/pkg/market"
)

var (
	// ErrUnknownIndicator reports a request for a name no calculator claims.
	ErrUnknownIndicator = errors.New("unknown indicator")

	// ErrInsufficientHistory reports that fewer candles were available than
	// the calculator's warmup requires.
	ErrInsufficientHistory = errors.New("insufficient candle history")

	// ErrMissingParam reports a required calculator parameter absent from
	// the request.
	ErrMissingParam = errors.New("missing indicator parameter")
)

// Calculator computes one indicator over a warmup window of closed candles.
// Candles are passed ascending by open time, ending at the requested candle.
type Calculator interface {
	Name() string

	// WarmupCandleCount is the minimum history length Calculate needs.
	WarmupCandleCount(req market.IndicatorRequest) (int, error)

	Calculate(req market.IndicatorRequest, candles []market.Candle) (market.IndicatorResult, error)
}

// Registry resolves calculators by case-insensitive name.
type Registry struct {
	calculators map[string]Calculator
}

func NewRegistry(calculators ...Calculator) *Registry {
	r := &Registry{calculators: make(map[string]Calculator, len(calculators))}
	for _, c := range calculators {
		r.calculators[strings.ToLower(c.Name())] = c
	}
	return r
}

// DefaultRegistry registers the built-in calculator set.
func DefaultRegistry() *Registry {
	return NewRegistry(
		SMACalculator{},
		EMACalculator{},
		RSICalculator{},
		BollingerCalculator{},
		ATRCalculator{},
		ADXCalculator{},
	)
}

func (r *Registry) Get(name string) (Calculator, error) {
	c, ok := r.calculators[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndicator, name)
	}
	return c, nil
}

// requiredPeriod extracts the "period" parameter, floored at 1.
func requiredPeriod(req market.IndicatorRequest) (int, error) {
	raw, ok := req.Params["period"]
	if !ok {
		return 0, fmt.Errorf("%w: %s requires \"period\"", ErrMissingParam, req.Name)
	}
	period := int(raw.IntPart())
	if period < 1 {
		period = 1
	}
	return period, nil
}

// optionalDecimal reads a parameter with a fallback.
func optionalDecimal(req market.IndicatorRequest, name string, fallback decimal.Decimal) decimal.Decimal {
	if v, ok := req.Params[name]; ok {
		return v
	}
	return fallback
}

func insufficientHistory(name string, have, need int) error {
	return fmt.Errorf("%w: %s needs %d candles, have %d", ErrInsufficientHistory, name, need, have)
}

// trueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(c market.Candle, prevClose decimal.Decimal) decimal.Decimal {
	highLow := c.High.Sub(c.Low)
	highClose := c.High.Sub(prevClose).Abs()
	lowClose := c.Low.Sub(prevClose).Abs()

	tr := highLow
	if highClose.GreaterThan(tr) {
		tr = highClose
	}
	if lowClose.GreaterThan(tr) {
		tr = lowClose
	}
	return tr
}

func newResult(req market.IndicatorRequest, values map[string]decimal.Decimal) market.IndicatorResult {
	return market.IndicatorResult{
		Name:       req.Name,
		Symbol:     req.Symbol,
		Timeframe:  req.Timeframe,
		CandleTime: req.CandleTime,
		Values:     values,
	}
}
