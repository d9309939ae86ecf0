package invalidation

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies what a mutation touched. Consumers filter on it; nothing
// else in the pipeline interprets it.
type Kind string

const (
	KindMemberDeleted       Kind = "member_deleted"
	KindMemberUpdated       Kind = "member_updated"
	KindBalanceChanged      Kind = "balance_changed"
	KindContributionChanged Kind = "contribution_changed"
	KindDisbursementChanged Kind = "disbursement_changed"
	KindGeneric             Kind = "generic"
)

// Event is the signal carried across every channel after a mutation. It is a
// notification that something changed, never a transfer of the new state:
// receivers re-query the backing store and must not trust any field here as
// ground truth.
type Event struct {
	ID         uuid.UUID `json:"id"`
	SubjectID  string    `json:"subject_id"`
	Kind       Kind      `json:"kind"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
	// Summary is a human readable bullet list of what was affected
	// ("12 contributions", "3 documents"). Informational only.
	Summary []string `json:"summary,omitempty"`
}

// NewEvent stamps identity and time so call sites only name the mutation.
func NewEvent(kind Kind, subjectID, actor string, summary ...string) Event {
	return Event{
		ID:         uuid.New(),
		SubjectID:  subjectID,
		Kind:       kind,
		Actor:      actor,
		OccurredAt: time.Now(),
		Summary:    summary,
	}
}

// DedupeKey identifies a burst of signals for the same mutation arriving
// through different channels.
func (e Event) DedupeKey() string {
	return string(e.Kind) + ":" + e.SubjectID
}
