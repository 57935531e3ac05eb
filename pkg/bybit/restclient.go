// Package bybit implements the Bybit V5 market-data integration: the REST
// kline client, the streaming kline client, the request rate limiter, and
// the paginating market-data feed composed from them.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"candlesync/pkg/market"
)

// RESTClient fetches closed candle history from the V5 kline endpoint.
type RESTClient struct {
	baseURL    string
	category   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewRESTClient(baseURL, category string, timeout time.Duration, logger *zap.Logger) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		category:   category,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// GetKlines fetches one page of candles for [start, end], ascending by open
// time. Transport failures, non-200 statuses and non-zero retCodes fail the
// whole call; malformed rows are logged and skipped.
func (c *RESTClient) GetKlines(ctx context.Context, symbol string, tf market.Timeframe,
	start, end time.Time, limit int) ([]market.Candle, error) {

	q := url.Values{}
	q.Set("category", c.category)
	q.Set("symbol", symbol)
	q.Set("interval", tf.Interval())
	q.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("end", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/v5/market/kline?" + q.Encode()

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamError{Op: "kline", Status: resp.StatusCode, Msg: string(body)}
	}

	var envelope Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &UpstreamError{Op: "kline", Msg: fmt.Sprintf("decode response: %v", err)}
	}
	if envelope.RetCode != 0 {
		return nil, &UpstreamError{Op: "kline", RetCode: envelope.RetCode, Msg: envelope.RetMsg}
	}

	var result KlinesResult
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		return nil, &UpstreamError{Op: "kline", Msg: fmt.Sprintf("decode result: %v", err)}
	}

	candles := c.parseRows(symbol, tf, result.List)

	// Bybit returns newest first; callers expect ascending open time.
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})
	return candles, nil
}

func (c *RESTClient) parseRows(symbol string, tf market.Timeframe, rows [][]string) []market.Candle {
	candles := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			c.logger.Warn("skipping incomplete kline row",
				zap.String("symbol", symbol), zap.Int("fields", len(row)))
			continue
		}

		startMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			c.logger.Warn("skipping kline row with bad start timestamp",
				zap.String("symbol", symbol), zap.String("start", row[0]))
			continue
		}

		candles = append(candles, market.Candle{
			OpenTime: time.UnixMilli(startMs).UTC(),
			Open:     parseDecimal(row[1]),
			High:     parseDecimal(row[2]),
			Low:      parseDecimal(row[3]),
			Close:    parseDecimal(row[4]),
			Volume:   parseDecimal(row[5]),
		})
	}
	return candles
}

// parseDecimal parses an exchange numeric string. Unparsable values become
// zero rather than failing the row.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
