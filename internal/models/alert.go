package models

import (
	"time"
)

// Alert conditions.
const (
	AlertAbove = "above"
	AlertBelow = "below"
)

// PriceAlert is a user-defined price threshold on a symbol. The evaluator
// reads the stored PriceRecord.PriceUSD as ground truth.
type PriceAlert struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Symbol      string     `json:"symbol"`
	TargetPrice float64    `json:"target_price"`
	Condition   string     `json:"condition"` // "above" or "below"
	IsActive    bool       `json:"is_active"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
}

// Notification is one row written for each triggered alert.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertEvaluation reports the outcome of one alert evaluation pass.
type AlertEvaluation struct {
	Evaluated int `json:"evaluated"`
	Triggered int `json:"triggered"`
}
