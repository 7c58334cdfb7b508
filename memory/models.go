package memory

import "time"

// Type describes the kind of memory record.
type Type string

const (
	TypeConversation Type = "conversation"
	TypePreference   Type = "preference"
	TypeEvent        Type = "event"
	TypeFact         Type = "fact"
	TypeLearning     Type = "learning"
)

// Types lists every valid memory type.
func Types() []Type {
	return []Type{TypeConversation, TypePreference, TypeEvent, TypeFact, TypeLearning}
}

// ValidType reports whether t is a known memory type.
func ValidType(t Type) bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// Importance is a user- or system-assigned priority on a record. It gates
// automatic archival: only low-importance records are ever swept by age.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Rank maps an importance level to its ordering weight (high=2, medium=1, low=0).
func (i Importance) Rank() int {
	switch i {
	case ImportanceHigh:
		return 2
	case ImportanceMedium:
		return 1
	default:
		return 0
	}
}

// ValidImportance reports whether i is a known importance level.
func ValidImportance(i Importance) bool {
	return i == ImportanceLow || i == ImportanceMedium || i == ImportanceHigh
}

// Record is a single stored memory. Records are never physically deleted;
// deletion sets Archived, keeping the record reachable by ID for audit.
type Record struct {
	ID             string                 `json:"memory_id"`
	Type           Type                   `json:"type"`
	Content        string                 `json:"content"`
	Context        map[string]interface{} `json:"context,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	Importance     Importance             `json:"importance"`
	RelevanceScore float64                `json:"relevance_score"`
	ExpiryDate     *time.Time             `json:"expiry_date,omitempty"`
	Archived       bool                   `json:"archived"`
	ArchivedAt     *time.Time             `json:"archived_at,omitempty"`
	AccessCount    int                    `json:"access_count"`
	CreatedAt      time.Time              `json:"created_at"`
	LastAccessed   *time.Time             `json:"last_accessed,omitempty"`
}

// SearchResult pairs a Record with a match or similarity score in [0,1].
type SearchResult struct {
	Record *Record
	Score  float64
}

// Statistics summarizes the store contents. Archived records are counted
// separately and excluded from the per-type and per-importance breakdowns.
type Statistics struct {
	Total        int                `json:"total_memories"`
	Active       int                `json:"active_memories"`
	Archived     int                `json:"archived_memories"`
	ByType       map[Type]int       `json:"by_type"`
	ByImportance map[Importance]int `json:"by_importance"`
}

// RetentionMultipliers scale the base cleanup window per memory type.
// Facts are kept an order of magnitude longer than conversation turns.
var RetentionMultipliers = map[Type]int{
	TypeConversation: 1,
	TypePreference:   3,
	TypeFact:         10,
	TypeLearning:     5,
	TypeEvent:        2,
}
