package ledger

import (
	"mintledger/internal/domain"
)

// Index holds every materialized lookup structure derived from the
// ledger. It is never a source of truth: replaying the ledger from
// sequence 0 through Apply reconstructs it bit-for-bit.
type Index struct {
	// BySubjectKey maps ticker hash to entry sequences in append order.
	BySubjectKey map[string][]uint64

	// ByToken maps token address to entry sequences in append order.
	ByToken map[domain.Address][]uint64

	// ByActor maps acting address to entry sequences in append order.
	ByActor map[domain.Address][]uint64

	// Reservations maps ticker hash to the current reservation.
	// Expiry is evaluated lazily at read time, never swept.
	Reservations map[string]domain.Reservation

	// Tokens maps ticker hash to the registered token address.
	Tokens map[string]domain.Address

	// Creators maps token address to its current creator. Each token
	// has exactly one current creator at any ledger height.
	Creators map[domain.Address]domain.Address

	// TickerOf maps token address back to its ticker hash.
	TickerOf map[domain.Address]string

	// Length is the number of entries applied.
	Length uint64
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		BySubjectKey: make(map[string][]uint64),
		ByToken:      make(map[domain.Address][]uint64),
		ByActor:      make(map[domain.Address][]uint64),
		Reservations: make(map[string]domain.Reservation),
		Tokens:       make(map[string]domain.Address),
		Creators:     make(map[domain.Address]domain.Address),
		TickerOf:     make(map[domain.Address]string),
	}
}

// Apply folds one entry into the index. Entries must be applied in
// sequence order; reservationWindowMs must match the ledger's window
// for expiry to replay identically.
func (idx *Index) Apply(e *domain.LedgerEntry, reservationWindowMs int64) {
	idx.BySubjectKey[e.SubjectKey] = append(idx.BySubjectKey[e.SubjectKey], e.Sequence)
	idx.ByActor[e.Actor] = append(idx.ByActor[e.Actor], e.Sequence)
	if !e.Subject.Zero() {
		idx.ByToken[e.Subject] = append(idx.ByToken[e.Subject], e.Sequence)
	}

	switch e.Kind {
	case domain.KindTickerReserved:
		idx.Reservations[e.SubjectKey] = domain.Reservation{
			TickerHash:  e.SubjectKey,
			Holder:      e.Beneficiary,
			ExpiresAtMs: e.TimestampMs + reservationWindowMs,
		}
	case domain.KindTickerReleased:
		delete(idx.Reservations, e.SubjectKey)
	case domain.KindTokenRegistered:
		delete(idx.Reservations, e.SubjectKey)
		idx.Tokens[e.SubjectKey] = e.Subject
		idx.Creators[e.Subject] = e.Beneficiary
		idx.TickerOf[e.Subject] = e.SubjectKey
	case domain.KindCreatorClaimed:
		idx.Creators[e.Subject] = e.Beneficiary
	}

	idx.Length = e.Sequence + 1
}

// Clone returns a deep copy of the index.
func (idx *Index) Clone() *Index {
	out := NewIndex()
	out.Length = idx.Length
	for k, v := range idx.BySubjectKey {
		out.BySubjectKey[k] = append([]uint64(nil), v...)
	}
	for k, v := range idx.ByToken {
		out.ByToken[k] = append([]uint64(nil), v...)
	}
	for k, v := range idx.ByActor {
		out.ByActor[k] = append([]uint64(nil), v...)
	}
	for k, v := range idx.Reservations {
		out.Reservations[k] = v
	}
	for k, v := range idx.Tokens {
		out.Tokens[k] = v
	}
	for k, v := range idx.Creators {
		out.Creators[k] = v
	}
	for k, v := range idx.TickerOf {
		out.TickerOf[k] = v
	}
	return out
}
