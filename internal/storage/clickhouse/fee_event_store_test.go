package clickhouse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintledger/internal/domain"
	chstore "mintledger/internal/storage/clickhouse"
)

func TestFeeEventStore_Insert(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewFeeEventStore(conn)
	ctx := context.Background()

	e := &domain.FeeEvent{
		Pool:          "PoolAddr",
		Asset:         "AssetAddr",
		Direction:     domain.DirectionBuy,
		TradeAmount:   100_000,
		FeeCharged:    1_000,
		CollectedFee:  800,
		ProtocolShare: 200,
		UserShare:     600,
		RateBps:       2500,
		TimestampMs:   1704067200000,
	}
	require.NoError(t, store.Insert(ctx, e))

	var count uint64
	row := conn.QueryRow(ctx, `SELECT count(*) FROM fee_events WHERE pool = 'PoolAddr'`)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, uint64(1), count)

	var protocolShare, userShare uint64
	row = conn.QueryRow(ctx, `SELECT protocol_share, user_share FROM fee_events WHERE pool = 'PoolAddr'`)
	require.NoError(t, row.Scan(&protocolShare, &userShare))
	assert.Equal(t, uint64(200), protocolShare)
	assert.Equal(t, uint64(600), userShare)
}
