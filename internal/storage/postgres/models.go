package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// Symbol is a registered trading pair. Candle rows reference it by id so
// the candle table's unique index stays narrow.
type Symbol struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"type:text;not null;uniqueIndex:idx_symbol_name"`

	BaseAsset  string `gorm:"type:text;not null"`
	QuoteAsset string `gorm:"type:text;not null"`
	Active     bool   `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Symbol) TableName() string {
	return "symbol"
}

// CandleRecord is one closed candle. Re-ingesting the same candle updates
// the row in place, so a backfill overlapping the stream is idempotent.
type CandleRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	SymbolID  uint      `gorm:"not null;index:idx_candle_symbol_tf_open,unique"`
	Timeframe string    `gorm:"type:varchar(10);not null;index:idx_candle_symbol_tf_open,unique"`
	OpenTime  time.Time `gorm:"not null;index:idx_candle_symbol_tf_open,unique"`

	Open  decimal.Decimal `gorm:"type:numeric;not null"`
	High  decimal.Decimal `gorm:"type:numeric;not null"`
	Low   decimal.Decimal `gorm:"type:numeric;not null"`
	Close decimal.Decimal `gorm:"type:numeric;not null"`

	Volume decimal.Decimal `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (CandleRecord) TableName() string {
	return "candle_record"
}
