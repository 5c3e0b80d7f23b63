package domain

// EntryKind identifies the state-changing action a ledger entry records.
type EntryKind string

// Entry kind constants.
const (
	KindTickerReserved  EntryKind = "TICKER_RESERVED"
	KindTokenRegistered EntryKind = "TOKEN_REGISTERED"
	KindCreatorClaimed  EntryKind = "CREATOR_CLAIMED"
	KindTickerReleased  EntryKind = "TICKER_RELEASED"
)

// ValidKind reports whether k is a known entry kind.
func ValidKind(k EntryKind) bool {
	switch k {
	case KindTickerReserved, KindTokenRegistered, KindCreatorClaimed, KindTickerReleased:
		return true
	}
	return false
}

// LedgerEntry is an immutable record of one state-changing action.
// Entries are append-only: once written they are never mutated or removed,
// and sequence numbers are dense starting from 0.
type LedgerEntry struct {
	Sequence     uint64    // dense, monotonic position in the ledger
	Kind         EntryKind // what happened
	SubjectKey   string    // ticker hash (hex, 64 chars)
	Subject      Address   // token address, empty for pure ticker actions
	Actor        Address   // address that performed the action
	Beneficiary  Address   // address that benefits (holder, creator)
	TimestampMs  int64     // Unix timestamp in milliseconds
	Ordinal      uint64    // ordering marker, advances once per state-changing operation
	MetadataHash string    // optional digest of associated configuration, empty if none
}

// Notification is the structured event emitted after every successful append.
// External indexers replay these to reconstruct state.
type Notification struct {
	Sequence    uint64    `json:"sequence"`
	Kind        EntryKind `json:"kind"`
	SubjectKey  string    `json:"subject_key"`
	Subject     Address   `json:"subject,omitempty"`
	Actor       Address   `json:"actor"`
	Beneficiary Address   `json:"beneficiary"`
	TimestampMs int64     `json:"timestamp_ms"`
}

// NotificationFromEntry builds the notification for a stored entry.
func NotificationFromEntry(e *LedgerEntry) Notification {
	return Notification{
		Sequence:    e.Sequence,
		Kind:        e.Kind,
		SubjectKey:  e.SubjectKey,
		Subject:     e.Subject,
		Actor:       e.Actor,
		Beneficiary: e.Beneficiary,
		TimestampMs: e.TimestampMs,
	}
}

// Reservation is the current claim a holder has on a ticker.
// It exists only in the materialized index; its history is the ledger.
type Reservation struct {
	TickerHash  string
	Holder      Address
	ExpiresAtMs int64
}

// Expired reports whether the reservation has lapsed at the given time.
func (r *Reservation) Expired(nowMs int64) bool {
	return nowMs >= r.ExpiresAtMs
}
