package models

import "time"

// DeliveryRecord is the durable marker that a specific user is eligible for a
// specific signal, and whether/when it actually reached them. Created once per
// (user, signal) pair at fan-out time; Delivered flips false->true at most once;
// never deleted.
type DeliveryRecord struct {
	UserID      string     `json:"user_id"`
	SignalID    string     `json:"signal_id"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Subscriber is a tier-scoped recipient known to the fan-out pipeline. The
// directory itself is maintained by the external account system; TradeCast only
// reads it to enumerate eligible users.
type Subscriber struct {
	UserID   string   `json:"user_id"`
	RiskTier RiskTier `json:"risk_tier"`
	Active   bool     `json:"active"`
}

// DeliveryStats aggregates counts for one caller's tier.
type DeliveryStats struct {
	Total     int64    `json:"total"`
	Delivered int64    `json:"delivered"`
	Recent    int64    `json:"recent"`
	RiskTier  RiskTier `json:"risk_tier"`
}

// FanoutEvent is the minimal broadcast payload: consumers re-fetch the
// canonical signal from the store before forwarding anything downstream.
type FanoutEvent struct {
	SignalID string   `json:"signal_id"`
	RiskTier RiskTier `json:"risk_tier"`
}

// PushEventSignalNew labels the websocket frame carrying a freshly fanned-out signal.
const PushEventSignalNew = "signal:new"

// PushMessage is the server-to-client websocket frame.
type PushMessage struct {
	Event  string  `json:"event"`
	Signal *Signal `json:"signal"`
}
