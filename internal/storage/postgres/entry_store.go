package postgres

import (
	"context"
	"fmt"
	"time"

	"mintledger/internal/domain"
	"mintledger/internal/observability"
	"mintledger/internal/storage"
)

// EntryStore implements storage.EntryStore using PostgreSQL.
// The ledger_entries table is insert-only; nothing ever updates or
// deletes a row.
type EntryStore struct {
	pool *Pool
}

// NewEntryStore creates a new EntryStore.
func NewEntryStore(pool *Pool) *EntryStore {
	return &EntryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EntryStore = (*EntryStore)(nil)

// observe records the query's duration, and the failure when err
// points at a non-nil error. Meant to be deferred with a named return.
func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds())
	if *err != nil {
		observability.RecordDBError("postgres", op)
	}
}

// Append stores a new entry. The entry's sequence must equal the current length.
func (s *EntryStore) Append(ctx context.Context, e *domain.LedgerEntry) (err error) {
	defer observe("append_entry", time.Now(), &err)
	if e == nil || !domain.ValidKind(e.Kind) || e.SubjectKey == "" {
		return storage.ErrInvalidInput
	}

	// The dense-sequence guard and the insert run in one transaction so
	// two appenders cannot both write sequence N.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	var length uint64
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM ledger_entries`).Scan(&length); err != nil {
		return fmt.Errorf("count entries: %w", err)
	}
	if e.Sequence < length {
		return storage.ErrDuplicateKey
	}
	if e.Sequence > length {
		return storage.ErrSequenceGap
	}

	query := `
		INSERT INTO ledger_entries (
			sequence, kind, subject_key, subject, actor, beneficiary,
			timestamp_ms, ordinal, metadata_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, query,
		int64(e.Sequence),
		string(e.Kind),
		e.SubjectKey,
		string(e.Subject),
		string(e.Actor),
		string(e.Beneficiary),
		e.TimestampMs,
		int64(e.Ordinal),
		e.MetadataHash,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Len returns the number of stored entries.
func (s *EntryStore) Len(ctx context.Context) (length uint64, err error) {
	defer observe("count_entries", time.Now(), &err)

	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM ledger_entries`).Scan(&length)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return length, nil
}

// ReadRange retrieves up to count entries starting at start, clipped to length.
func (s *EntryStore) ReadRange(ctx context.Context, start, count uint64) (result []*domain.LedgerEntry, err error) {
	defer observe("read_range", time.Now(), &err)

	if count == 0 {
		return nil, nil
	}

	query := `
		SELECT sequence, kind, subject_key, subject, actor, beneficiary,
		       timestamp_ms, ordinal, metadata_hash
		FROM ledger_entries
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, int64(start), int64(count))
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e           domain.LedgerEntry
			seq, ord    int64
			kind        string
			subject     string
			actor       string
			beneficiary string
		)
		err := rows.Scan(&seq, &kind, &e.SubjectKey, &subject, &actor, &beneficiary,
			&e.TimestampMs, &ord, &e.MetadataHash)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Sequence = uint64(seq)
		e.Ordinal = uint64(ord)
		e.Kind = domain.EntryKind(kind)
		e.Subject = domain.Address(subject)
		e.Actor = domain.Address(actor)
		e.Beneficiary = domain.Address(beneficiary)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return result, nil
}
