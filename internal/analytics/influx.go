// Package analytics ships engine measurements to InfluxDB. Writes go through
// the client's non-blocking API so a slow or absent analytics backend never
// stalls settlement.
package analytics

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/pda-labs/gamecore/pkg/ledger"
)

// Writer records game and liquidity measurements
type Writer struct {
	client influxdb2.Client
	write  api.WriteAPI
}

// NewWriter connects to InfluxDB and returns an asynchronous writer
func NewWriter(url, token, org, bucket string) *Writer {
	client := influxdb2.NewClient(url, token)
	return &Writer{
		client: client,
		write:  client.WriteAPI(org, bucket),
	}
}

// LiquidityPoint records one pool accounting event
func (w *Writer) LiquidityPoint(kind string, amount, balance ledger.Amount, day int64) {
	p := influxdb2.NewPoint("liquidity",
		map[string]string{"kind": kind},
		map[string]interface{}{
			"amount":  amount.Decimal().InexactFloat64(),
			"balance": balance.Decimal().InexactFloat64(),
			"day":     day,
		},
		time.Now(),
	)
	w.write.WritePoint(p)
}

// GamePoint records one game settlement or refund
func (w *Writer) GamePoint(kind string, gameID uint64, bet ledger.Amount, players int, payout, fee ledger.Amount) {
	p := influxdb2.NewPoint("game",
		map[string]string{"kind": kind},
		map[string]interface{}{
			"game_id": int64(gameID),
			"bet":     bet.Decimal().InexactFloat64(),
			"players": players,
			"payout":  payout.Decimal().InexactFloat64(),
			"fee":     fee.Decimal().InexactFloat64(),
		},
		time.Now(),
	)
	w.write.WritePoint(p)
}

// Flush drains buffered points
func (w *Writer) Flush() {
	w.write.Flush()
}

// Close flushes and shuts down the client
func (w *Writer) Close() {
	w.write.Flush()
	w.client.Close()
}
