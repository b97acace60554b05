package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPublishWithoutConnection(t *testing.T) {
	t.Run("nil client is safe", func(t *testing.T) {
		var c *Client
		err := c.Publish(context.Background(), SubjectGameJoined, GameEvent{})
		assert.Error(t, err)
	})

	t.Run("disconnected client returns an error", func(t *testing.T) {
		c := &Client{}
		err := c.Publish(context.Background(), SubjectGameJoined, GameEvent{})
		assert.Error(t, err)
	})
}

func TestRequestDeadline(t *testing.T) {
	t.Run("no context deadline keeps the timeout", func(t *testing.T) {
		assert.Equal(t, 5*time.Second, requestDeadline(context.Background(), 5*time.Second))
	})

	t.Run("shorter context deadline wins", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		d := requestDeadline(ctx, 5*time.Second)
		assert.LessOrEqual(t, d, 50*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	})

	t.Run("longer context deadline keeps the timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		assert.Equal(t, time.Second, requestDeadline(ctx, time.Second))
	})
}

func TestEventPayloadShape(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("game event carries string amounts", func(t *testing.T) {
		payload, err := json.Marshal(GameEvent{
			EventID:     uuid.New(),
			GameID:      7,
			BetAmount:   "0.001",
			Player:      "alice",
			PlayerCount: 2,
			Timestamp:   at,
		})
		assert.NoError(t, err)

		var decoded map[string]interface{}
		assert.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, "0.001", decoded["bet_amount"])
		assert.Equal(t, float64(7), decoded["game_id"])
		assert.Equal(t, "alice", decoded["player"])
	})

	t.Run("settlement-only fields are omitted on joins", func(t *testing.T) {
		payload, err := json.Marshal(GameEvent{EventID: uuid.New(), GameID: 1, BetAmount: "0.001", Timestamp: at})
		assert.NoError(t, err)

		var decoded map[string]interface{}
		assert.NoError(t, json.Unmarshal(payload, &decoded))
		assert.NotContains(t, decoded, "winner")
		assert.NotContains(t, decoded, "payout")
		assert.NotContains(t, decoded, "fee")
		assert.NotContains(t, decoded, "refunded")
	})

	t.Run("liquidity event names the source flow", func(t *testing.T) {
		payload, err := json.Marshal(LiquidityEvent{
			EventID: uuid.New(),
			Caller:  "game-engine",
			Source:  "game",
			Amount:  "0.003",
			Balance: "0.003",
			Day:     19875,
		})
		assert.NoError(t, err)

		var decoded LiquidityEvent
		assert.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, "game", decoded.Source)
		assert.Equal(t, int64(19875), decoded.Day)
	})
}
