// Package learning infers user preferences from observed behavior. Each
// lens looks at one slice of the event log or memory store and proposes a
// preference with a confidence; proposals confident enough are committed to
// the preference store as inferred values, where manual settings still win.
package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/RajputVikashS5/Elixi-AI/events"
	"github.com/RajputVikashS5/Elixi-AI/memory"
	"github.com/RajputVikashS5/Elixi-AI/preferences"
)

const (
	// BehaviorCategory holds inferred preferences about how the user works.
	BehaviorCategory = "behavior"
	// AutomationCategory holds inferred preferences about what to automate.
	AutomationCategory = "automation"

	// commitMinConfidence gates which proposals reach the preference store.
	commitMinConfidence = 0.6
	// styleMinConversations is the smallest sample the interaction-style
	// lens will draw a conclusion from.
	styleMinConversations = 5
)

// Proposal is one inferred preference candidate with its supporting evidence.
type Proposal struct {
	Category   string      `json:"category"`
	Key        string      `json:"key"`
	Value      interface{} `json:"value"`
	Confidence float64     `json:"confidence"`
	Evidence   string      `json:"evidence"`
	Committed  bool        `json:"committed"`
}

// Insight is a meta-observation about the preference profile as a whole.
type Insight struct {
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Learner runs the behavioral lenses and commits confident proposals.
type Learner struct {
	events   *events.Store
	memories *memory.Store
	prefs    *preferences.Store
	logger   zerolog.Logger
}

func NewLearner(eventStore *events.Store, memories *memory.Store, prefs *preferences.Store, logger zerolog.Logger) (*Learner, error) {
	if eventStore == nil || memories == nil || prefs == nil {
		return nil, errors.New("event store, memory store and preference store are required")
	}
	return &Learner{
		events:   eventStore,
		memories: memories,
		prefs:    prefs,
		logger:   logger.With().Str("component", "behavior_learner").Logger(),
	}, nil
}

// AnalyzeBehavior runs every lens over the last windowDays of activity and
// commits proposals at or above 0.6 confidence to the preference store.
// Weaker proposals are still returned, uncommitted, for inspection.
func (l *Learner) AnalyzeBehavior(ctx context.Context, windowDays int) ([]Proposal, error) {
	if windowDays <= 0 {
		windowDays = 14
	}
	l.logger.Debug().
		Str("method", "AnalyzeBehavior").
		Int("windowDays", windowDays).
		Msg("called")

	window, err := l.events.Window(ctx, time.Now().AddDate(0, 0, -windowDays))
	if err != nil {
		return nil, fmt.Errorf("load event window: %w", err)
	}

	var proposals []Proposal
	proposals = appendProposal(proposals, preferredApp(window))
	proposals = appendProposal(proposals, peakActivityTime(window))
	proposals = appendProposal(proposals, preferredCommandType(window))

	style, err := l.interactionStyle(ctx)
	if err != nil {
		return nil, err
	}
	proposals = appendProposal(proposals, style)

	committed := 0
	for i := range proposals {
		if proposals[i].Confidence < commitMinConfidence {
			continue
		}
		_, err := l.prefs.Learn(ctx, proposals[i].Category, proposals[i].Key, proposals[i].Value, proposals[i].Confidence)
		if err != nil {
			if errors.Is(err, preferences.ErrConfidenceTooLow) {
				continue
			}
			return proposals, fmt.Errorf("commit proposal %s: %w", proposals[i].Key, err)
		}
		proposals[i].Committed = true
		committed++
	}

	l.logger.Info().
		Str("method", "AnalyzeBehavior").
		Int("events", len(window)).
		Int("proposals", len(proposals)).
		Int("committed", committed).
		Msg("Behavior analysis completed")
	return proposals, nil
}

func appendProposal(proposals []Proposal, p *Proposal) []Proposal {
	if p == nil {
		return proposals
	}
	return append(proposals, *p)
}

// preferredApp proposes the most launched app when it accounts for more
// than 30% of launches.
func preferredApp(window []events.Event) *Proposal {
	launches := lo.FilterMap(window, func(ev events.Event, _ int) (string, bool) {
		if ev.Type != "app_opened" {
			return "", false
		}
		app, _ := ev.Data["app_name"].(string)
		return app, app != ""
	})
	app, count := topValue(launches)
	if app == "" {
		return nil
	}
	share := float64(count) / float64(len(launches))
	if share <= 0.3 {
		return nil
	}
	return &Proposal{
		Category:   BehaviorCategory,
		Key:        "preferred_app",
		Value:      app,
		Confidence: math.Min(0.95, 0.5+share),
		Evidence:   fmt.Sprintf("%d of %d app launches", count, len(launches)),
	}
}

// peakActivityTime proposes the busiest time-of-day bucket when it holds
// more than 35% of all events.
func peakActivityTime(window []events.Event) *Proposal {
	if len(window) == 0 {
		return nil
	}
	periods := lo.Map(window, func(ev events.Event, _ int) string { return ev.TimeOfDay })
	period, count := topValue(periods)
	share := float64(count) / float64(len(window))
	if share <= 0.35 {
		return nil
	}
	return &Proposal{
		Category:   BehaviorCategory,
		Key:        "peak_activity_time",
		Value:      period,
		Confidence: math.Min(0.9, 0.4+share),
		Evidence:   fmt.Sprintf("%d of %d events in the %s", count, len(window), period),
	}
}

// preferredCommandType proposes the dominant command kind when it is more
// than a quarter of executed commands.
func preferredCommandType(window []events.Event) *Proposal {
	commands := lo.FilterMap(window, func(ev events.Event, _ int) (string, bool) {
		if ev.Type != "command_executed" {
			return "", false
		}
		kind, _ := ev.Data["command_type"].(string)
		return kind, kind != ""
	})
	kind, count := topValue(commands)
	if kind == "" {
		return nil
	}
	share := float64(count) / float64(len(commands))
	if share <= 0.25 {
		return nil
	}
	return &Proposal{
		Category:   AutomationCategory,
		Key:        "preferred_command_type",
		Value:      kind,
		Confidence: math.Min(0.85, 0.5+share),
		Evidence:   fmt.Sprintf("%d of %d commands", count, len(commands)),
	}
}

// interactionStyle classifies how verbose the user's conversation turns are.
// With fewer than five conversation memories it stays silent.
func (l *Learner) interactionStyle(ctx context.Context) (*Proposal, error) {
	records, err := l.memories.ByType(ctx, memory.TypeConversation, 100)
	if err != nil {
		return nil, fmt.Errorf("load conversation memories: %w", err)
	}
	if len(records) < styleMinConversations {
		return nil, nil
	}

	var totalLen int
	for _, rec := range records {
		totalLen += len(rec.Content)
	}
	avgLen := float64(totalLen) / float64(len(records))

	var style string
	var confidence float64
	switch {
	case avgLen < 100:
		style, confidence = "brief", 0.75
	case avgLen < 300:
		style, confidence = "moderate", 0.70
	default:
		style, confidence = "detailed", 0.75
	}
	return &Proposal{
		Category:   BehaviorCategory,
		Key:        "interaction_style",
		Value:      style,
		Confidence: confidence,
		Evidence:   fmt.Sprintf("average turn length %.0f chars over %d turns", avgLen, len(records)),
	}, nil
}

func topValue(values []string) (string, int) {
	counts := lo.CountValues(values)
	best, bestCount := "", 0
	for value, count := range counts {
		if count > bestCount || (count == bestCount && value < best) {
			best, bestCount = value, count
		}
	}
	return best, bestCount
}

// DetectPreferencePatterns inspects the preference profile as a whole and
// reports meta-observations: categories with strong, confident profiles and
// whether the profile is driven by learning or by explicit settings.
func (l *Learner) DetectPreferencePatterns(ctx context.Context) ([]Insight, error) {
	grouped, err := l.prefs.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	var insights []Insight
	var total, inferred, manual int
	for category, prefs := range grouped {
		confident := 0
		for _, pref := range prefs {
			total++
			switch pref.Source {
			case preferences.SourceInferred:
				inferred++
			case preferences.SourceManual:
				manual++
			}
			if pref.Confidence > 0.8 {
				confident++
			}
		}
		if len(prefs) >= 3 && confident >= 2 {
			insights = append(insights, Insight{
				Kind:        "strong_category",
				Description: fmt.Sprintf("Strong preference profile in %s (%d settings, %d high-confidence)", category, len(prefs), confident),
				Confidence:  0.8,
			})
		}
	}
	if total == 0 {
		return insights, nil
	}

	inferredShare := float64(inferred) / float64(total)
	manualShare := float64(manual) / float64(total)
	if inferredShare > 0.6 {
		insights = append(insights, Insight{
			Kind:        "learning_active",
			Description: "Most preferences are learned from behavior",
			Confidence:  inferredShare,
		})
	}
	if manualShare > 0.7 {
		insights = append(insights, Insight{
			Kind:        "explicit_control",
			Description: "Preferences are mostly set explicitly",
			Confidence:  manualShare,
		})
	}
	return insights, nil
}
