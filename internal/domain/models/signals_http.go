package models

// CreateSignalRequest is the admin ingestion payload. Validation tags mirror
// the boundary rules: symbol non-empty, side/tier from the closed sets, all
// prices strictly positive. Cross-field rules (risk > 0) run in the usecase.
type CreateSignalRequest struct {
	Symbol     string            `json:"symbol" validate:"required,min=1,max=32"`
	Timeframe  string            `json:"timeframe" default:"1h" validate:"omitempty,oneof=1m 5m 15m 30m 1h 4h 1d"`
	Side       string            `json:"side" validate:"required,oneof=buy sell"`
	EntryPrice float64           `json:"entry_price" validate:"required,gt=0"`
	StopLoss   float64           `json:"stop_loss" validate:"required,gt=0"`
	TakeProfit float64           `json:"take_profit" validate:"required,gt=0"`
	RiskTier   string            `json:"risk_tier" validate:"required,oneof=low medium high"`
	Confidence float64           `json:"confidence" validate:"omitempty,gte=0,lte=100"`
	Metadata   map[string]string `json:"metadata"`
}

// CreateSignalResponse is returned on 201.
type CreateSignalResponse struct {
	Signal       *Signal `json:"signal"`
	MatchedUsers int64   `json:"matched_users"`
}

// DuplicateSignalResponse is returned when a retry hit the dedup key.
// Resubmission is a successful idempotent retry, not an error.
type DuplicateSignalResponse struct {
	Exists bool    `json:"exists"`
	Signal *Signal `json:"signal,omitempty"`
}

// MarkTakenRequest reports an outcome for an active signal.
type MarkTakenRequest struct {
	Outcome string  `json:"outcome" validate:"required,oneof=win loss breakeven"`
	PnL     float64 `json:"pnl"`
}

// SyncRequest filters the pull-based catch-up query. Limit is capped
// server-side; Since accepts RFC3339 or unix seconds.
type SyncRequest struct {
	Limit            int    `query:"limit" default:"50" validate:"omitempty,gte=1"`
	Since            string `query:"since"`
	IncludeDelivered bool   `query:"includeDelivered"`
}

// SyncResponse is the tier-scoped reconciliation payload.
type SyncResponse struct {
	Signals  []*SyncedSignal `json:"signals"`
	Count    int             `json:"count"`
	RiskTier RiskTier        `json:"risk_tier"`
}

// SyncedSignal is a signal optionally annotated with the caller's delivery state.
type SyncedSignal struct {
	*Signal
	Delivered *bool `json:"delivered,omitempty"`
}
