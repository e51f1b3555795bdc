package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Side is the direction of a signal. Closed set, validated at the boundary.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide validates a free-form side string.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToLower(s)) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

// RiskTier partitions which users receive which signals.
type RiskTier string

const (
	TierLow    RiskTier = "low"
	TierMedium RiskTier = "medium"
	TierHigh   RiskTier = "high"
)

// ParseRiskTier validates a free-form tier string.
func ParseRiskTier(s string) (RiskTier, bool) {
	switch RiskTier(strings.ToLower(s)) {
	case TierLow:
		return TierLow, true
	case TierMedium:
		return TierMedium, true
	case TierHigh:
		return TierHigh, true
	}
	return "", false
}

// SignalStatus is the signal lifecycle state.
// active -> archived and active -> taken are the only transitions; both terminal.
type SignalStatus string

const (
	StatusActive   SignalStatus = "active"
	StatusArchived SignalStatus = "archived"
	StatusTaken    SignalStatus = "taken"
)

// Terminal reports whether the status admits no further transitions.
func (s SignalStatus) Terminal() bool {
	return s == StatusArchived || s == StatusTaken
}

// Origin identifies who produced a signal.
type Origin string

const (
	OriginAdmin  Origin = "admin"
	OriginSystem Origin = "system"
)

// Outcome is the reported result of a taken signal.
type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeLoss      Outcome = "loss"
	OutcomeBreakeven Outcome = "breakeven"
)

// ParseOutcome validates a free-form outcome string.
func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(strings.ToLower(s)) {
	case OutcomeWin:
		return OutcomeWin, true
	case OutcomeLoss:
		return OutcomeLoss, true
	case OutcomeBreakeven:
		return OutcomeBreakeven, true
	}
	return "", false
}

// Signal is a trading signal record. Financial fields (symbol, timeframe, side,
// entry/stop/target, tier) are immutable once persisted; only Status and the
// outcome fields move, and only forward through the lifecycle.
type Signal struct {
	ID          string            `json:"id"`
	Symbol      string            `json:"symbol"`
	Timeframe   string            `json:"timeframe"`
	Side        Side              `json:"side"`
	EntryPrice  float64           `json:"entry_price"`
	StopLoss    float64           `json:"stop_loss"`
	TakeProfit  float64           `json:"take_profit"`
	RiskReward  float64           `json:"risk_reward"`
	RiskTier    RiskTier          `json:"risk_tier"`
	Confidence  float64           `json:"confidence"`
	Recommended bool              `json:"recommended"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatorID   string            `json:"creator_id"`
	Origin      Origin            `json:"origin"`
	Status      SignalStatus      `json:"status"`
	Outcome     *Outcome          `json:"outcome,omitempty"`
	PnL         *float64          `json:"pnl,omitempty"`
	TakenBy     string            `json:"taken_by,omitempty"`
	DedupKey    string            `json:"-"`
	Seq         int64             `json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// RiskReward computes reward/risk for the given side.
// For a buy: risk = entry - stop, reward = target - entry.
// For a sell: risk = stop - entry, reward = entry - target.
// Returns an error when risk or reward is not strictly positive, so an entry
// equal to the stop never reaches a division.
func RiskReward(side Side, entry, stop, target float64) (float64, error) {
	var risk, reward float64
	switch side {
	case SideBuy:
		risk = entry - stop
		reward = target - entry
	case SideSell:
		risk = stop - entry
		reward = entry - target
	default:
		return 0, fmt.Errorf("unknown side %q", side)
	}
	if risk <= 0 {
		return 0, fmt.Errorf("stop_loss must leave positive risk for %s", side)
	}
	if reward <= 0 {
		return 0, fmt.Errorf("take_profit must leave positive reward for %s", side)
	}
	return reward / risk, nil
}

// DedupKey derives the deterministic hash that collapses duplicate or retried
// submissions into one record. The time bucket truncates the submission time so
// retries inside the same window map to the same key.
func DedupKey(symbol, timeframe string, side Side, entry, stop, target float64, at time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = 5 * time.Minute
	}
	parts := []string{
		strings.ToUpper(symbol),
		timeframe,
		string(side),
		strconv.FormatFloat(entry, 'f', -1, 64),
		strconv.FormatFloat(stop, 'f', -1, 64),
		strconv.FormatFloat(target, 'f', -1, 64),
		strconv.FormatInt(at.UTC().Truncate(bucket).Unix(), 10),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
