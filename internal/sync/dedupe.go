package sync

import (
	"fmt"
	"time"

	"zapdesk/pkg/models"

	"github.com/google/uuid"
)

// Tunable fuzzy-match thresholds. The prefix length and bucket width are
// heuristics, not a contract; widen the bucket and more near-simultaneous
// identical texts collapse into one.
const (
	fuzzyPrefixLen     = 30
	fuzzyBucketSeconds = 10
)

// Gate decides which candidate messages are genuinely new for one
// conversation. It is the single choke point for message insertion: every
// import path must pass its candidates through a gate built from the
// conversation's persisted state. State is scoped to one reconciliation run.
type Gate struct {
	knownIDs map[string]bool
	fuzzy    map[string]bool
}

// NewGate builds a gate from the conversation's persisted external IDs and
// its recent messages (for content-based matching against rows that carry no
// usable external ID)
func NewGate(externalIDs map[string]bool, recent []models.Message) *Gate {
	g := &Gate{
		knownIDs: make(map[string]bool, len(externalIDs)),
		fuzzy:    make(map[string]bool, len(recent)),
	}
	for id := range externalIDs {
		g.knownIDs[id] = true
	}
	for _, m := range recent {
		g.fuzzy[fuzzyKey(m.Content, m.CreatedAt)] = true
	}
	return g
}

// Filter returns the candidates that should be inserted, in input order.
// Accepted candidates are registered immediately, so duplicates inside the
// batch itself (e.g. the same messages arriving via two fetch endpoints)
// are also collapsed.
func (g *Gate) Filter(candidates []Normalized) []Normalized {
	var fresh []Normalized
	for _, c := range candidates {
		if c.ExternalID != "" && g.knownIDs[c.ExternalID] {
			continue
		}
		key := fuzzyKey(c.Content, c.Timestamp)
		if g.fuzzy[key] {
			continue
		}

		if c.ExternalID != "" {
			g.knownIDs[c.ExternalID] = true
		}
		g.fuzzy[key] = true
		fresh = append(fresh, c)
	}
	return fresh
}

// fuzzyKey collapses a message to a content-prefix plus coarse time bucket.
// Two messages with different content never share a key.
func fuzzyKey(content string, ts time.Time) string {
	prefix := []rune(content)
	if len(prefix) > fuzzyPrefixLen {
		prefix = prefix[:fuzzyPrefixLen]
	}
	bucket := int64(0)
	if !ts.IsZero() {
		bucket = ts.Unix() / fuzzyBucketSeconds
	}
	return fmt.Sprintf("%s|%d", string(prefix), bucket)
}

// liveDedupeWindow bounds how many persisted messages feed the fuzzy index
// when admitting a single live event
const liveDedupeWindow = 50

// AdmitLive decides whether one live gateway event should be inserted into a
// conversation, using the same gate as history sync. Events without an
// external ID cannot lean on the unique index, so the fuzzy window is the
// only guard against broker redelivery for them.
func AdmitLive(store MessageStore, conversationID uuid.UUID, candidate Normalized) (bool, error) {
	knownIDs, err := store.GetExternalIDs(conversationID)
	if err != nil {
		return false, err
	}
	recent, err := store.ListRecent(conversationID, liveDedupeWindow)
	if err != nil {
		return false, err
	}
	gate := NewGate(knownIDs, recent)
	return len(gate.Filter([]Normalized{candidate})) == 1, nil
}
