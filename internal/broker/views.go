package broker

import (
	"sort"

	"github.com/jouyai/dashboard-kel/internal/models"
)

// Buckets is the per-operator partition of the session registry into the
// console's three tabs. Every session lands in exactly one bucket.
type Buckets struct {
	// Queue holds live sessions no operator has claimed yet.
	Queue []models.Session `json:"queue"`
	// Mine holds live sessions claimed by this operator.
	Mine []models.Session `json:"mine"`
	// History holds bot-mode sessions and live sessions claimed by others.
	History []models.Session `json:"history"`
}

// Partition buckets a registry snapshot for one operator identity. Pure:
// same snapshot and identity always produce the same buckets. Each bucket is
// ordered by last activity, newest first.
func Partition(sessions []models.Session, self string) Buckets {
	sorted := make([]models.Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastActivityAt.After(sorted[j].LastActivityAt)
	})

	var b Buckets
	for _, s := range sorted {
		switch {
		case s.State == models.StateLiveUnclaimed:
			b.Queue = append(b.Queue, s)
		case s.OwnedBy(self):
			b.Mine = append(b.Mine, s)
		default:
			b.History = append(b.History, s)
		}
	}
	return b
}
