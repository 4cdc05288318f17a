package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssetInfo represents metadata for a base asset seen in exchange filters.
type AssetInfo struct {
	Asset        string    `gorm:"primaryKey" json:"asset"`
	IconPath     string    `json:"icon_path"`
	IsActive     bool      `json:"is_active" gorm:"index"` // Listed by at least one TRADING symbol
	LastSyncedAt time.Time `json:"last_synced_at"`         // Last icon sync time
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AlertRecord is the persisted form of an Alert, keyed by ID.
type AlertRecord struct {
	ID            string   `gorm:"primaryKey"`
	Symbol        string   `gorm:"index"`
	Price         float64
	Type          string
	Name          string
	Notifications string // comma separated
	SoundType     string
	Repeat        bool
	Active        bool
	Triggered     bool
	TriggeredAt   *int64
	LastPrice     *float64
	CreatedAt     int64
}

// CandleRecord is one cached bar of a (symbol, interval) series.
type CandleRecord struct {
	Symbol   string `gorm:"primaryKey"`
	Interval string `gorm:"primaryKey"`
	Time     int64  `gorm:"primaryKey"`
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// ToRecord converts an Alert to its persisted form.
func (a *Alert) ToRecord() AlertRecord {
	rec := AlertRecord{
		ID:            a.ID,
		Symbol:        a.Symbol,
		Price:         a.Price.InexactFloat64(),
		Type:          string(a.Type),
		Name:          a.Name,
		Notifications: strings.Join(a.Notifications, ","),
		SoundType:     a.SoundType,
		Repeat:        a.Repeat,
		Active:        a.Active,
		Triggered:     a.Triggered,
		TriggeredAt:   a.TriggeredAt,
		CreatedAt:     a.CreatedAt,
	}
	if a.LastPrice != nil {
		lp := a.LastPrice.InexactFloat64()
		rec.LastPrice = &lp
	}
	return rec
}

// ToAlert converts a persisted record back to an Alert.
func (r *AlertRecord) ToAlert() Alert {
	a := Alert{
		ID:          r.ID,
		Symbol:      r.Symbol,
		Price:       decimal.NewFromFloat(r.Price),
		Type:        AlertType(r.Type),
		Name:        r.Name,
		SoundType:   r.SoundType,
		Repeat:      r.Repeat,
		Active:      r.Active,
		Triggered:   r.Triggered,
		TriggeredAt: r.TriggeredAt,
		CreatedAt:   r.CreatedAt,
	}
	if r.Notifications != "" {
		a.Notifications = strings.Split(r.Notifications, ",")
	}
	if r.LastPrice != nil {
		lp := decimal.NewFromFloat(*r.LastPrice)
		a.LastPrice = &lp
	}
	return a
}

// ToCandle drops the series key.
func (r *CandleRecord) ToCandle() Candle {
	return Candle{Time: r.Time, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}
}
