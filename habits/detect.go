package habits

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/RajputVikashS5/Elixi-AI/events"
)

const (
	// sequentialGap is the longest pause between two app launches that still
	// counts them as a sequence.
	sequentialGap = 5 * time.Minute
	// sequentialMinOccurrences is how often a pair must repeat before it is
	// considered a pattern at all.
	sequentialMinOccurrences = 2
	// sequentialSurfaceConfidence gates which sequential patterns are kept.
	sequentialSurfaceConfidence = 0.7

	// timeBasedDetectConfidence is the detector-level share cutoff.
	timeBasedDetectConfidence = 0.4
	// frequencyMinOccurrences is the minimum count for a frequency pattern.
	frequencyMinOccurrences = 3
	// pipelineMinConfidence is the final cutoff applied to time-based and
	// frequency candidates before persistence.
	pipelineMinConfidence = 0.6
)

// detectSequential finds app-launch pairs that repeat. Two consecutive
// app_opened events within five minutes form a candidate pair; a pair seen
// at least twice becomes a pattern with confidence 0.7 + 0.05 per
// occurrence, capped at 0.95. Only patterns above 0.7 are surfaced, so a
// bare two-occurrence pair (confidence 0.80) always passes.
func detectSequential(evs []events.Event) []Pattern {
	type launch struct {
		app string
		at  time.Time
	}
	var launches []launch
	for _, ev := range evs {
		if ev.Type != "app_opened" {
			continue
		}
		app, _ := ev.Data["app_name"].(string)
		if app == "" {
			continue
		}
		launches = append(launches, launch{app: app, at: ev.CreatedAt})
	}

	// Same-app pairs count too: reopening one app repeatedly is itself a habit.
	pairCounts := make(map[string]int)
	for i := 1; i < len(launches); i++ {
		prev, cur := launches[i-1], launches[i]
		if cur.at.Sub(prev.at) > sequentialGap {
			continue
		}
		pairCounts[prev.app+" -> "+cur.app]++
	}

	var patterns []Pattern
	for pair, count := range pairCounts {
		if count < sequentialMinOccurrences {
			continue
		}
		confidence := math.Min(0.95, 0.7+float64(count)*0.05)
		if confidence <= sequentialSurfaceConfidence {
			continue
		}
		patterns = append(patterns, Pattern{
			Type:        PatternSequential,
			Description: fmt.Sprintf("You often open %s", pair),
			Occurrences: count,
			Confidence:  confidence,
		})
	}
	return patterns
}

// detectTimeBased finds event types concentrated in a time-of-day bucket.
// For each bucket the three most common types are considered, with
// confidence equal to their share of the bucket's events. The detector
// keeps candidates above 0.4; the pipeline later applies its stricter 0.6
// cutoff before anything is persisted.
func detectTimeBased(evs []events.Event) []Pattern {
	byPeriod := lo.GroupBy(evs, func(ev events.Event) string { return ev.TimeOfDay })

	var patterns []Pattern
	for period, periodEvents := range byPeriod {
		if len(periodEvents) == 0 {
			continue
		}
		counts := lo.CountValuesBy(periodEvents, func(ev events.Event) string { return ev.Type })
		types := lo.Keys(counts)
		sort.Slice(types, func(i, j int) bool {
			if counts[types[i]] != counts[types[j]] {
				return counts[types[i]] > counts[types[j]]
			}
			return types[i] < types[j]
		})
		if len(types) > 3 {
			types = types[:3]
		}
		for _, typ := range types {
			share := float64(counts[typ]) / float64(len(periodEvents))
			if share <= timeBasedDetectConfidence {
				continue
			}
			patterns = append(patterns, Pattern{
				Type:        PatternTimeBased,
				Description: fmt.Sprintf("You usually do %s in the %s", typ, period),
				TimePeriod:  period,
				Occurrences: counts[typ],
				Confidence:  share,
			})
		}
	}
	return patterns
}

// detectFrequency finds event types that dominate the window overall.
// Confidence is the type's share of all events, capped at 0.95.
func detectFrequency(evs []events.Event) []Pattern {
	if len(evs) == 0 {
		return nil
	}
	counts := lo.CountValuesBy(evs, func(ev events.Event) string { return ev.Type })

	var patterns []Pattern
	for typ, count := range counts {
		if count < frequencyMinOccurrences {
			continue
		}
		confidence := math.Min(0.95, float64(count)/float64(len(evs)))
		if confidence <= pipelineMinConfidence {
			continue
		}
		patterns = append(patterns, Pattern{
			Type:        PatternFrequency,
			Description: fmt.Sprintf("You frequently do %s", typ),
			Occurrences: count,
			Confidence:  confidence,
		})
	}
	return patterns
}
