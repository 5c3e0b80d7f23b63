// Package ledger implements the append-only provenance ledger and its
// materialized indexes. Append is the only mutator; index updates happen
// atomically with the append, so there is no window where the ledger and
// its indexes disagree.
package ledger

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"mintledger/internal/domain"
	"mintledger/internal/idhash"
	"mintledger/internal/storage"
)

// DefaultReservationWindow is how long a ticker reservation lasts.
const DefaultReservationWindow = 24 * time.Hour

// replayPageSize is how many entries are loaded per page when
// rebuilding indexes at startup.
const replayPageSize = 500

// Subscriber receives a notification after every successful append.
type Subscriber func(domain.Notification)

// Options configures a Ledger.
type Options struct {
	// ReservationWindow overrides DefaultReservationWindow.
	ReservationWindow time.Duration

	// Now overrides the clock; used by tests. Returns Unix ms.
	Now func() int64

	// Logger is optional.
	Logger *log.Logger
}

// Ledger is the append-only ledger plus its derived indexes.
type Ledger struct {
	store    storage.EntryStore
	windowMs int64
	now      func() int64
	logger   *log.Logger

	mu      sync.Mutex
	idx     *Index
	ordinal uint64

	subsMu sync.RWMutex
	subs   []Subscriber
}

// New creates a Ledger over the given entry store. If the store already
// holds entries, the indexes are rebuilt by replaying them from
// sequence 0.
func New(ctx context.Context, store storage.EntryStore, opts Options) (*Ledger, error) {
	window := opts.ReservationWindow
	if window <= 0 {
		window = DefaultReservationWindow
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	l := &Ledger{
		store:    store,
		windowMs: window.Milliseconds(),
		now:      now,
		logger:   logger,
		idx:      NewIndex(),
	}

	if err := l.rebuild(ctx); err != nil {
		return nil, fmt.Errorf("rebuild indexes: %w", err)
	}
	return l, nil
}

// rebuild replays all stored entries into a fresh index.
func (l *Ledger) rebuild(ctx context.Context) error {
	var start uint64
	for {
		entries, err := l.store.ReadRange(ctx, start, replayPageSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			if e.Sequence != l.idx.Length {
				return fmt.Errorf("non-dense ledger: entry %d at height %d", e.Sequence, l.idx.Length)
			}
			l.idx.Apply(e, l.windowMs)
			if e.Ordinal >= l.ordinal {
				l.ordinal = e.Ordinal + 1
			}
		}
		start += uint64(len(entries))
	}
	if l.idx.Length > 0 {
		l.logger.Printf("rebuilt indexes from %d entries", l.idx.Length)
	}
	return nil
}

// Subscribe registers a notification subscriber. Subscribers are invoked
// synchronously after each successful append, in registration order.
func (l *Ledger) Subscribe(fn Subscriber) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	l.subs = append(l.subs, fn)
}

// Reserve records a ticker reservation for holder. Re-reserving an own
// unexpired ticker refreshes the expiry; an expired reservation can be
// taken over by anyone.
func (l *Ledger) Reserve(ctx context.Context, ticker string, holder domain.Address) (uint64, error) {
	const op = "reserveTicker"
	if holder.Zero() {
		return 0, &domain.ValidationError{Op: op, Field: "holder", Reason: "zero address"}
	}
	if ticker == "" {
		return 0, &domain.ValidationError{Op: op, Field: "ticker", Reason: "empty"}
	}
	key := idhash.TickerHash(ticker)

	l.mu.Lock()
	if token, registered := l.idx.Tokens[key]; registered {
		l.mu.Unlock()
		return 0, &domain.ConflictError{Op: op, Key: key, Reason: fmt.Sprintf("ticker already registered to token %s", token)}
	}
	if res, held := l.idx.Reservations[key]; held && !res.Expired(l.now()) && res.Holder != holder {
		l.mu.Unlock()
		return 0, &domain.ConflictError{Op: op, Key: key, Reason: fmt.Sprintf("reserved by %s until %d", res.Holder, res.ExpiresAtMs)}
	}

	seq, notif, err := l.appendLocked(ctx, domain.KindTickerReserved, key, "", holder, holder, "")
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	l.notify(notif)
	return seq, nil
}

// Register writes the canonical TokenRegistered entry. An unexpired
// reservation on the ticker must be held by the creator. This is called
// by the issuance orchestrator after all other deployment steps.
func (l *Ledger) Register(ctx context.Context, ticker string, token, creator, actor domain.Address, metadataHash string) (uint64, error) {
	const op = "registerToken"
	if token.Zero() {
		return 0, &domain.ValidationError{Op: op, Field: "token", Reason: "zero address"}
	}
	if creator.Zero() {
		return 0, &domain.ValidationError{Op: op, Field: "creator", Reason: "zero address"}
	}
	key := idhash.TickerHash(ticker)

	l.mu.Lock()
	if existing, registered := l.idx.Tokens[key]; registered {
		l.mu.Unlock()
		return 0, &domain.ConflictError{Op: op, Key: key, Reason: fmt.Sprintf("ticker already registered to token %s", existing)}
	}
	if _, exists := l.idx.TickerOf[token]; exists {
		l.mu.Unlock()
		return 0, &domain.ConflictError{Op: op, Key: string(token), Reason: "token already registered"}
	}
	if res, held := l.idx.Reservations[key]; held && !res.Expired(l.now()) && res.Holder != creator {
		l.mu.Unlock()
		return 0, &domain.ConflictError{Op: op, Key: key, Reason: fmt.Sprintf("reserved by %s", res.Holder)}
	}

	seq, notif, err := l.appendLocked(ctx, domain.KindTokenRegistered, key, token, actor, creator, metadataHash)
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	l.notify(notif)
	return seq, nil
}

// ClaimCreator transfers a token's creator role to newCreator. The actor
// must be the current creator.
func (l *Ledger) ClaimCreator(ctx context.Context, token, newCreator, actor domain.Address) (uint64, error) {
	const op = "claimCreator"
	if newCreator.Zero() {
		return 0, &domain.ValidationError{Op: op, Field: "newCreator", Reason: "zero address"}
	}

	l.mu.Lock()
	key, registered := l.idx.TickerOf[token]
	if !registered {
		l.mu.Unlock()
		return 0, &domain.StateError{Op: op, Key: string(token), Reason: "token not registered"}
	}
	if current := l.idx.Creators[token]; current != actor {
		l.mu.Unlock()
		return 0, &domain.AuthorizationError{Op: op, Caller: actor, Role: "creator"}
	}

	seq, notif, err := l.appendLocked(ctx, domain.KindCreatorClaimed, key, token, actor, newCreator, "")
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	l.notify(notif)
	return seq, nil
}

// Release releases the caller's own reservation.
func (l *Ledger) Release(ctx context.Context, ticker string, caller domain.Address) (uint64, error) {
	const op = "releaseReservation"
	key := idhash.TickerHash(ticker)

	l.mu.Lock()
	res, held := l.idx.Reservations[key]
	if !held {
		l.mu.Unlock()
		return 0, &domain.StateError{Op: op, Key: key, Reason: "no reservation"}
	}
	if res.Holder != caller {
		l.mu.Unlock()
		return 0, &domain.ConflictError{Op: op, Key: key, Reason: fmt.Sprintf("held by %s", res.Holder)}
	}

	seq, notif, err := l.appendLocked(ctx, domain.KindTickerReleased, key, "", caller, res.Holder, "")
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	l.notify(notif)
	return seq, nil
}

// ReleaseExpired releases a lapsed reservation on behalf of anyone.
// Expiry is evaluated here, lazily; nothing sweeps reservations.
func (l *Ledger) ReleaseExpired(ctx context.Context, ticker string, caller domain.Address) (uint64, error) {
	const op = "releaseExpiredReservation"
	key := idhash.TickerHash(ticker)

	l.mu.Lock()
	res, held := l.idx.Reservations[key]
	if !held {
		l.mu.Unlock()
		return 0, &domain.StateError{Op: op, Key: key, Reason: "no reservation"}
	}
	if !res.Expired(l.now()) {
		l.mu.Unlock()
		return 0, &domain.StateError{Op: op, Key: key, Reason: fmt.Sprintf("not expired until %d", res.ExpiresAtMs)}
	}

	seq, notif, err := l.appendLocked(ctx, domain.KindTickerReleased, key, "", caller, res.Holder, "")
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	l.notify(notif)
	return seq, nil
}

// appendLocked persists one entry and folds it into the indexes.
// The caller holds l.mu. If the store rejects the entry nothing is
// indexed, so the ledger and indexes can never disagree.
func (l *Ledger) appendLocked(ctx context.Context, kind domain.EntryKind, key string, subject, actor, beneficiary domain.Address, metadataHash string) (uint64, domain.Notification, error) {
	e := &domain.LedgerEntry{
		Sequence:     l.idx.Length,
		Kind:         kind,
		SubjectKey:   key,
		Subject:      subject,
		Actor:        actor,
		Beneficiary:  beneficiary,
		TimestampMs:  l.now(),
		Ordinal:      l.ordinal,
		MetadataHash: metadataHash,
	}
	if err := l.store.Append(ctx, e); err != nil {
		return 0, domain.Notification{}, fmt.Errorf("append entry: %w", err)
	}
	l.idx.Apply(e, l.windowMs)
	l.ordinal++
	return e.Sequence, domain.NotificationFromEntry(e), nil
}

func (l *Ledger) notify(n domain.Notification) {
	l.subsMu.RLock()
	subs := l.subs
	l.subsMu.RUnlock()
	for _, fn := range subs {
		fn(n)
	}
}

// Len returns the current ledger height.
func (l *Ledger) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.idx.Length
}

// ReadRange retrieves up to count entries starting at start, clipped to
// the current length.
func (l *Ledger) ReadRange(ctx context.Context, start, count uint64) ([]*domain.LedgerEntry, error) {
	return l.store.ReadRange(ctx, start, count)
}

// HistoryBySubject returns the entry sequences recorded for a subject
// key, in append order.
func (l *Ledger) HistoryBySubject(key string) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint64(nil), l.idx.BySubjectKey[key]...)
}

// TickerHistory returns the entry sequences for a ticker, in append order.
func (l *Ledger) TickerHistory(ticker string) []uint64 {
	return l.HistoryBySubject(idhash.TickerHash(ticker))
}

// LookupReservation returns the current reservation for a ticker along
// with whether it has expired at the time of the call.
func (l *Ledger) LookupReservation(ticker string) (res domain.Reservation, exists, expired bool) {
	key := idhash.TickerHash(ticker)
	l.mu.Lock()
	defer l.mu.Unlock()
	res, exists = l.idx.Reservations[key]
	if !exists {
		return domain.Reservation{}, false, false
	}
	return res, true, res.Expired(l.now())
}

// ReservationCount returns the number of reservations that have not
// expired at the time of the call.
func (l *Ledger) ReservationCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	count := 0
	for _, r := range l.idx.Reservations {
		if !r.Expired(now) {
			count++
		}
	}
	return count
}

// TokenByTicker returns the token registered under a ticker, if any.
func (l *Ledger) TokenByTicker(ticker string) (domain.Address, bool) {
	key := idhash.TickerHash(ticker)
	l.mu.Lock()
	defer l.mu.Unlock()
	token, ok := l.idx.Tokens[key]
	return token, ok
}

// CreatorOf returns a token's current creator, if registered.
func (l *Ledger) CreatorOf(token domain.Address) (domain.Address, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	creator, ok := l.idx.Creators[token]
	return creator, ok
}

// Snapshot returns a deep copy of the live indexes for verification.
func (l *Ledger) Snapshot() *Index {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.idx.Clone()
}

// ReservationWindowMs returns the configured reservation window.
func (l *Ledger) ReservationWindowMs() int64 {
	return l.windowMs
}
