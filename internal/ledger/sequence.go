package ledger

import (
	"slices"
	"strings"
	"time"

	"merchledger/internal/domain"
)

// SortShows orders shows by calendar date, breaking same-day ties by id so
// the sequence is the same on every call.
func SortShows(shows []domain.Show) {
	slices.SortStableFunc(shows, func(a, b domain.Show) int {
		if c := dateOnly(a.Date).Compare(dateOnly(b.Date)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// PreviousShow returns the show sequenced immediately before currentID.
// It reports false when currentID is first or not part of shows.
func PreviousShow(shows []domain.Show, currentID string) (domain.Show, bool) {
	ordered := slices.Clone(shows)
	SortShows(ordered)

	idx := slices.IndexFunc(ordered, func(s domain.Show) bool { return s.ID == currentID })
	if idx <= 0 {
		return domain.Show{}, false
	}
	return ordered[idx-1], true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
