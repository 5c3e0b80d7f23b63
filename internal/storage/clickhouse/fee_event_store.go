package clickhouse

import (
	"context"
	"fmt"
	"time"

	"mintledger/internal/domain"
	"mintledger/internal/observability"
	"mintledger/internal/storage"
)

// FeeEventStore implements storage.FeeEventStore using ClickHouse.
type FeeEventStore struct {
	conn *Conn
}

// NewFeeEventStore creates a new FeeEventStore.
func NewFeeEventStore(conn *Conn) *FeeEventStore {
	return &FeeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FeeEventStore = (*FeeEventStore)(nil)

// observe records the query's duration, and the failure when err
// points at a non-nil error. Meant to be deferred with a named return.
func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("clickhouse", op, time.Since(start).Seconds())
	if *err != nil {
		observability.RecordDBError("clickhouse", op)
	}
}

// Insert adds one fee event row.
func (s *FeeEventStore) Insert(ctx context.Context, e *domain.FeeEvent) (err error) {
	defer observe("insert_fee_event", time.Now(), &err)

	if e == nil || e.Pool.Zero() {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO fee_events (
			pool, asset, direction, trade_amount, fee_charged,
			collected_fee, protocol_share, user_share, rate_bps, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		string(e.Pool), string(e.Asset), string(e.Direction),
		e.TradeAmount, e.FeeCharged, e.CollectedFee,
		e.ProtocolShare, e.UserShare, e.RateBps, uint64(e.TimestampMs),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
