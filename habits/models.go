package habits

import "time"

// PatternType classifies how a pattern was detected.
type PatternType string

const (
	PatternSequential PatternType = "sequential"
	PatternTimeBased  PatternType = "time_based"
	PatternFrequency  PatternType = "frequency"
)

// Pattern is a detected behavioral regularity. Patterns are write-once:
// after detection only user feedback may change them, so confidence always
// reflects the evidence at detection time.
type Pattern struct {
	ID          string      `json:"pattern_id"`
	Type        PatternType `json:"pattern_type"`
	Description string      `json:"description"`
	TimePeriod  string      `json:"time_period,omitempty"`
	Occurrences int         `json:"occurrences"`
	Confidence  float64     `json:"confidence_score"`
	DetectedAt  time.Time   `json:"detected_at"`
	Feedback    string      `json:"user_feedback,omitempty"`
	FeedbackAt  *time.Time  `json:"feedback_at,omitempty"`
}

// Analytics summarizes the detected pattern set.
type Analytics struct {
	Total         int                 `json:"total_patterns"`
	ByType        map[PatternType]int `json:"by_type"`
	AvgConfidence float64             `json:"avg_confidence"`
	Confirmed     int                 `json:"confirmed"`
	Rejected      int                 `json:"rejected"`
}
