package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"candlesync/pkg/market"
)

const upsertBatchSize = 500

// CandleRepository persists closed candles and serves indicator history
// reads. Symbol ids are cached after first lookup; symbols are only ever
// inserted, never deleted, so the cache cannot go stale.
type CandleRepository struct {
	db     *gorm.DB
	logger *zap.Logger

	mu        sync.RWMutex
	symbolIDs map[string]uint
}

func NewCandleRepository(client *PostgresClient, logger *zap.Logger) *CandleRepository {
	return &CandleRepository{
		db:        client.DB,
		logger:    logger,
		symbolIDs: make(map[string]uint),
	}
}

// Upsert writes candles for (symbol, timeframe), updating rows that already
// exist. Safe to call with overlapping batches from backfill and stream.
func (r *CandleRepository) Upsert(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	symbolID, err := r.symbolID(ctx, symbol)
	if err != nil {
		return err
	}

	records := make([]CandleRecord, 0, len(candles))
	for _, c := range candles {
		records = append(records, CandleRecord{
			SymbolID:  symbolID,
			Timeframe: tf.String(),
			OpenTime:  c.OpenTime.UTC(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol_id"},
			{Name: "timeframe"},
			{Name: "open_time"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"open", "high", "low", "close", "volume", "updated_at",
		}),
	}).CreateInBatches(records, upsertBatchSize)

	if tx.Error != nil {
		return fmt.Errorf("upsert candles: %w", tx.Error)
	}

	r.logger.Debug("upserted candles",
		zap.String("symbol", symbol),
		zap.String("timeframe", tf.String()),
		zap.Int("count", len(candles)))
	return nil
}

// GetHistory returns up to count candles with open time <= upto, ascending.
func (r *CandleRepository) GetHistory(ctx context.Context, symbol string, tf market.Timeframe,
	upto time.Time, count int) ([]market.Candle, error) {

	symbolID, ok, err := r.lookupSymbolID(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var records []CandleRecord
	err = r.db.WithContext(ctx).
		Where("symbol_id = ? AND timeframe = ? AND open_time <= ?", symbolID, tf.String(), upto.UTC()).
		Order("open_time DESC").
		Limit(count).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query candle history: %w", err)
	}

	// Reverse the newest-first page into ascending order.
	candles := make([]market.Candle, len(records))
	for i, rec := range records {
		candles[len(records)-1-i] = market.Candle{
			OpenTime: rec.OpenTime.UTC(),
			Open:     rec.Open,
			High:     rec.High,
			Low:      rec.Low,
			Close:    rec.Close,
			Volume:   rec.Volume,
		}
	}
	return candles, nil
}

// GetLastOpenTime reports the newest stored open time for (symbol, timeframe).
// ok is false when nothing is stored yet.
func (r *CandleRepository) GetLastOpenTime(ctx context.Context, symbol string, tf market.Timeframe) (time.Time, bool, error) {
	symbolID, found, err := r.lookupSymbolID(ctx, symbol)
	if err != nil || !found {
		return time.Time{}, false, err
	}

	var record CandleRecord
	err = r.db.WithContext(ctx).
		Where("symbol_id = ? AND timeframe = ?", symbolID, tf.String()).
		Order("open_time DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last open time: %w", err)
	}
	return record.OpenTime.UTC(), true, nil
}

// symbolID returns the id for symbol, inserting the row on first use.
func (r *CandleRepository) symbolID(ctx context.Context, symbol string) (uint, error) {
	r.mu.RLock()
	id, ok := r.symbolIDs[symbol]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	// Concurrent first writers race on the insert; the unique index on name
	// makes DoNothing + re-read converge on one row.
	baseAsset, quoteAsset := splitSymbol(symbol)
	row := Symbol{Name: symbol, BaseAsset: baseAsset, QuoteAsset: quoteAsset, Active: true}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return 0, fmt.Errorf("insert symbol: %w", err)
	}

	if row.ID == 0 {
		if err := r.db.WithContext(ctx).Where("name = ?", symbol).First(&row).Error; err != nil {
			return 0, fmt.Errorf("lookup symbol after insert: %w", err)
		}
	}

	r.mu.Lock()
	r.symbolIDs[symbol] = row.ID
	r.mu.Unlock()
	return row.ID, nil
}

// knownQuoteAssets are tried in order against the symbol name's suffix.
var knownQuoteAssets = []string{"USDT", "USDC", "BTC", "ETH", "USD", "EUR"}

// splitSymbol derives base and quote assets from a concatenated pair name
// like BTCUSDT. Names with no recognized quote suffix keep the full name in
// both fields.
func splitSymbol(symbol string) (string, string) {
	upper := strings.ToUpper(symbol)
	for _, quote := range knownQuoteAssets {
		if strings.HasSuffix(upper, quote) && len(symbol) > len(quote) {
			return symbol[:len(symbol)-len(quote)], quote
		}
	}
	return symbol, symbol
}

// lookupSymbolID resolves symbol without inserting. ok is false for symbols
// never written.
func (r *CandleRepository) lookupSymbolID(ctx context.Context, symbol string) (uint, bool, error) {
	r.mu.RLock()
	id, ok := r.symbolIDs[symbol]
	r.mu.RUnlock()
	if ok {
		return id, true, nil
	}

	var row Symbol
	err := r.db.WithContext(ctx).Where("name = ?", symbol).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup symbol: %w", err)
	}

	r.mu.Lock()
	r.symbolIDs[symbol] = row.ID
	r.mu.Unlock()
	return row.ID, true, nil
}
