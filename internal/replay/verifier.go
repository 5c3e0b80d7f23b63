package replay

import (
	"fmt"

	"mintledger/internal/ledger"
)

// Divergence represents a mismatch between live and replayed index state.
type Divergence struct {
	Field    string      // index name and key, e.g. "Reservations[abc...]"
	Expected interface{} // replayed value
	Actual   interface{} // live value
}

// Report contains the result of verifying a live index snapshot against
// a fresh replay.
type Report struct {
	EntriesReplayed uint64
	Match           bool
	Divergences     []Divergence
}

// Verify compares a live index snapshot against a replayed one.
// Replayed state is treated as expected: the ledger is the source of
// truth and the live indexes must agree with it.
func Verify(replayed, live *ledger.Index) *Report {
	report := &Report{EntriesReplayed: replayed.Length, Match: true}

	if replayed.Length != live.Length {
		report.add("Length", replayed.Length, live.Length)
	}

	for key, want := range replayed.BySubjectKey {
		if got := live.BySubjectKey[key]; !equalSeqs(want, got) {
			report.add(fmt.Sprintf("BySubjectKey[%s]", key), want, got)
		}
	}
	for key, got := range live.BySubjectKey {
		if _, ok := replayed.BySubjectKey[key]; !ok {
			report.add(fmt.Sprintf("BySubjectKey[%s]", key), nil, got)
		}
	}

	for token, want := range replayed.ByToken {
		if got := live.ByToken[token]; !equalSeqs(want, got) {
			report.add(fmt.Sprintf("ByToken[%s]", token), want, got)
		}
	}
	for token, got := range live.ByToken {
		if _, ok := replayed.ByToken[token]; !ok {
			report.add(fmt.Sprintf("ByToken[%s]", token), nil, got)
		}
	}

	for actor, want := range replayed.ByActor {
		if got := live.ByActor[actor]; !equalSeqs(want, got) {
			report.add(fmt.Sprintf("ByActor[%s]", actor), want, got)
		}
	}
	for actor, got := range live.ByActor {
		if _, ok := replayed.ByActor[actor]; !ok {
			report.add(fmt.Sprintf("ByActor[%s]", actor), nil, got)
		}
	}

	for key, want := range replayed.Reservations {
		got, ok := live.Reservations[key]
		if !ok || got != want {
			report.add(fmt.Sprintf("Reservations[%s]", key), want, got)
		}
	}
	for key, got := range live.Reservations {
		if _, ok := replayed.Reservations[key]; !ok {
			report.add(fmt.Sprintf("Reservations[%s]", key), nil, got)
		}
	}

	for key, want := range replayed.Tokens {
		if got, ok := live.Tokens[key]; !ok || got != want {
			report.add(fmt.Sprintf("Tokens[%s]", key), want, got)
		}
	}
	for key, got := range live.Tokens {
		if _, ok := replayed.Tokens[key]; !ok {
			report.add(fmt.Sprintf("Tokens[%s]", key), nil, got)
		}
	}

	for token, want := range replayed.Creators {
		if got, ok := live.Creators[token]; !ok || got != want {
			report.add(fmt.Sprintf("Creators[%s]", token), want, got)
		}
	}
	for token, got := range live.Creators {
		if _, ok := replayed.Creators[token]; !ok {
			report.add(fmt.Sprintf("Creators[%s]", token), nil, got)
		}
	}

	for token, want := range replayed.TickerOf {
		if got, ok := live.TickerOf[token]; !ok || got != want {
			report.add(fmt.Sprintf("TickerOf[%s]", token), want, got)
		}
	}
	for token, got := range live.TickerOf {
		if _, ok := replayed.TickerOf[token]; !ok {
			report.add(fmt.Sprintf("TickerOf[%s]", token), nil, got)
		}
	}

	return report
}

func (r *Report) add(field string, expected, actual interface{}) {
	r.Match = false
	r.Divergences = append(r.Divergences, Divergence{Field: field, Expected: expected, Actual: actual})
}

func equalSeqs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
