package domain

import "github.com/shopspring/decimal"

// AlertType selects the crossing rule of an alert.
type AlertType string

const (
	AlertAbove AlertType = "ABOVE"
	AlertBelow AlertType = "BELOW"
	AlertCross AlertType = "CROSS"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertAbove, AlertBelow, AlertCross:
		return true
	default:
		return false
	}
}

// Alert represents a user-defined price alert.
// Triggered, Active and TriggeredAt are only written by the alert engine.
type Alert struct {
	ID            string           `json:"id"`
	Symbol        string           `json:"symbol"`
	Price         decimal.Decimal  `json:"price"`
	Type          AlertType        `json:"type"`
	Name          string           `json:"name"`
	Notifications []string         `json:"notifications"` // "sound", "visual", "system"
	SoundType     string           `json:"soundType"`
	Repeat        bool             `json:"repeat"`
	Active        bool             `json:"active"`
	Triggered     bool             `json:"triggered"`
	TriggeredAt   *int64           `json:"triggeredAt"` // Unix millis
	LastPrice     *decimal.Decimal `json:"lastPrice"`
	CreatedAt     int64            `json:"createdAt"`
}

// NewAlert creates an active, untriggered alert.
// If the caller passes an empty type, the type is derived from currentPrice:
// ABOVE when the threshold is at or above the current price, BELOW otherwise.
func NewAlert(id, symbol string, price, currentPrice decimal.Decimal, typ AlertType, createdAt int64) *Alert {
	if typ == "" {
		typ = AlertAbove
		if price.LessThan(currentPrice) {
			typ = AlertBelow
		}
	}
	return &Alert{
		ID:            id,
		Symbol:        symbol,
		Price:         price,
		Type:          typ,
		Notifications: []string{"visual"},
		SoundType:     "default",
		Active:        true,
		CreatedAt:     createdAt,
	}
}

// Clone returns a deep copy so callers never alias engine-owned state.
func (a Alert) Clone() Alert {
	out := a
	if a.Notifications != nil {
		out.Notifications = append([]string(nil), a.Notifications...)
	}
	if a.TriggeredAt != nil {
		v := *a.TriggeredAt
		out.TriggeredAt = &v
	}
	if a.LastPrice != nil {
		v := *a.LastPrice
		out.LastPrice = &v
	}
	return out
}

// CheckCrossing applies the crossing rule for the alert's type.
// previous is nil when no earlier price is known for the symbol.
//   - ABOVE: current >= threshold and (previous unknown or previous < threshold)
//   - BELOW: current <= threshold and (previous unknown or previous > threshold)
//   - CROSS: previous known and the pair straddles the threshold
func (a *Alert) CheckCrossing(current decimal.Decimal, previous *decimal.Decimal) bool {
	th := a.Price
	switch a.Type {
	case AlertAbove:
		return current.GreaterThanOrEqual(th) && (previous == nil || previous.LessThan(th))
	case AlertBelow:
		return current.LessThanOrEqual(th) && (previous == nil || previous.GreaterThan(th))
	case AlertCross:
		if previous == nil {
			return false
		}
		up := previous.LessThan(th) && th.LessThanOrEqual(current)
		down := previous.GreaterThan(th) && th.GreaterThanOrEqual(current)
		return up || down
	default:
		return false
	}
}
