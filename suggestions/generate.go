package suggestions

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/RajputVikashS5/Elixi-AI/habits"
	"github.com/RajputVikashS5/Elixi-AI/preferences"
)

// generateMinConfidence gates which patterns and recommendations become
// suggestions.
const generateMinConfidence = 0.7

// GenerateFromPatterns turns confident, unrejected behavioral patterns into
// pending suggestions. A pattern whose description already backs a pending
// suggestion is skipped, so repeated sweeps do not pile up duplicates.
// Returns the suggestions created.
func (s *Store) GenerateFromPatterns(ctx context.Context, patterns []habits.Pattern) ([]Suggestion, error) {
	pending, err := s.GetActive(ctx, 100)
	if err != nil {
		return nil, err
	}
	existing := lo.SliceToMap(pending, func(sugg Suggestion) (string, struct{}) {
		return sugg.Description, struct{}{}
	})

	var created []Suggestion
	for _, pattern := range patterns {
		if pattern.Confidence < generateMinConfidence {
			continue
		}
		if pattern.Feedback == "rejected" || pattern.Feedback == "not_helpful" {
			continue
		}
		if _, dup := existing[pattern.Description]; dup {
			continue
		}

		var typ, title string
		switch pattern.Type {
		case habits.PatternSequential:
			typ, title = "automation", "Automate a frequent app sequence"
		case habits.PatternTimeBased:
			typ, title = "scheduling", fmt.Sprintf("Build a %s routine", pattern.TimePeriod)
		default:
			typ, title = "optimization", "Make a frequent activity easier"
		}

		sugg, err := s.Create(ctx, typ, title, pattern.Description, pattern.Confidence,
			map[string]interface{}{"pattern_id": pattern.ID})
		if err != nil {
			return created, err
		}
		existing[pattern.Description] = struct{}{}
		created = append(created, sugg)
	}
	return created, nil
}

// GenerateFromRecommendations turns confident inferred preferences into
// learning suggestions asking the user to confirm them.
func (s *Store) GenerateFromRecommendations(ctx context.Context, prefs *preferences.Store) ([]Suggestion, error) {
	recommendations, err := prefs.Recommendations(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := s.GetActive(ctx, 100)
	if err != nil {
		return nil, err
	}
	existing := lo.SliceToMap(pending, func(sugg Suggestion) (string, struct{}) {
		return sugg.Title, struct{}{}
	})

	var created []Suggestion
	for _, rec := range recommendations {
		title := fmt.Sprintf("Confirm learned preference: %s", strings.ReplaceAll(rec.Key, "_", " "))
		if _, dup := existing[title]; dup {
			continue
		}
		description := fmt.Sprintf("It looks like your %s is %v. Confirm to keep it.",
			strings.ReplaceAll(rec.Key, "_", " "), rec.Value)
		sugg, err := s.Create(ctx, "learning", title, description, rec.Confidence,
			map[string]interface{}{"category": rec.Category, "key": rec.Key})
		if err != nil {
			return created, err
		}
		existing[title] = struct{}{}
		created = append(created, sugg)
	}
	return created, nil
}
