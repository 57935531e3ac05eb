package indicator

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"candlesync/pkg/market"
)

// cacheKey addresses one indicator evaluation. The base key identifies the
// (symbol, timeframe, candle) only, so every evaluation for a candle can be
// found and invalidated together.
type cacheKey struct {
	value string
	base  string
}

func keyFrom(req market.IndicatorRequest) cacheKey {
	name := strings.ToLower(strings.TrimSpace(req.Name))
	base := baseKey(req.Symbol, req.Timeframe, req.CandleTime)

	if len(req.Params) == 0 {
		return cacheKey{value: name + ":" + base, base: base}
	}

	names := make([]string, 0, len(req.Params))
	for param := range req.Params {
		names = append(names, param)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	var sb strings.Builder
	for i, param := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strings.ToLower(param))
		sb.WriteByte('=')
		sb.WriteString(req.Params[param].String())
	}

	return cacheKey{value: name + ":" + base + ":" + sb.String(), base: base}
}

func baseKey(symbol string, tf market.Timeframe, candleTime time.Time) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + ":" +
		strings.ToLower(tf.String()) + ":" +
		strconv.FormatInt(candleTime.Unix(), 10)
}
