package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Event subjects
const (
	SubjectGameJoined   = "game.joined"
	SubjectGameFull     = "game.full"
	SubjectGameSettled  = "game.settled"
	SubjectGameRefunded = "game.refunded"

	SubjectLiquidityInflow  = "liquidity.inflow"
	SubjectLiquidityOutflow = "liquidity.outflow"
	SubjectLiquidityLocked  = "liquidity.locked"
	SubjectLiquidityBurned  = "liquidity.burned"

	SubjectReferralCredited = "referral.credited"
)

// GameEvent carries game lifecycle data
type GameEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	GameID      uint64    `json:"game_id"`
	BetAmount   string    `json:"bet_amount"`
	Player      string    `json:"player,omitempty"`
	PlayerCount int       `json:"player_count"`
	Winner      string    `json:"winner,omitempty"`
	Payout      string    `json:"payout,omitempty"`
	Fee         string    `json:"fee,omitempty"`
	Refunded    bool      `json:"refunded,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// LiquidityEvent carries pool accounting data
type LiquidityEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	Caller    string    `json:"caller,omitempty"`
	Source    string    `json:"source,omitempty"`
	Amount    string    `json:"amount"`
	Balance   string    `json:"balance"`
	Day       int64     `json:"day"`
	Timestamp time.Time `json:"timestamp"`
}

// ReferralEvent carries referral credit data
type ReferralEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	CreditID  uuid.UUID `json:"credit_id"`
	Player    string    `json:"player"`
	Referrer  string    `json:"referrer"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}
