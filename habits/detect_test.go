package habits

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/RajputVikashS5/Elixi-AI/events"
)

func appOpened(app string, at time.Time) events.Event {
	return events.Event{
		Type:      "app_opened",
		Data:      map[string]interface{}{"app_name": app},
		TimeOfDay: events.TimeOfDay(at.Hour()),
		CreatedAt: at,
	}
}

func TestDetectSequential_RequiresTwoOccurrences(t *testing.T) {
	base := time.Date(2026, time.August, 24, 9, 0, 0, 0, time.UTC)

	once := []events.Event{
		appOpened("Mail", base),
		appOpened("Calendar", base.Add(time.Minute)),
	}
	if patterns := detectSequential(once); len(patterns) != 0 {
		t.Fatalf("single occurrence should not form a pattern, got %+v", patterns)
	}

	twice := append(once,
		appOpened("Mail", base.Add(time.Hour)),
		appOpened("Calendar", base.Add(time.Hour+time.Minute)),
	)
	patterns := detectSequential(twice)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Occurrences != 2 {
		t.Fatalf("expected 2 occurrences, got %d", p.Occurrences)
	}
	// 0.7 + 2*0.05
	if math.Abs(p.Confidence-0.80) > 1e-9 {
		t.Fatalf("expected confidence 0.80, got %v", p.Confidence)
	}
	if !strings.Contains(p.Description, "Mail -> Calendar") {
		t.Fatalf("unexpected description %q", p.Description)
	}
}

func TestDetectSequential_GapAndConfidenceCap(t *testing.T) {
	base := time.Date(2026, time.August, 24, 9, 0, 0, 0, time.UTC)

	// Pairs 10 minutes apart never count.
	var spread []events.Event
	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		spread = append(spread, appOpened("Mail", start), appOpened("Calendar", start.Add(10*time.Minute)))
	}
	if patterns := detectSequential(spread); len(patterns) != 0 {
		t.Fatalf("pairs beyond the gap should not count, got %+v", patterns)
	}

	// Many tight repetitions cap at 0.95.
	var tight []events.Event
	for i := 0; i < 10; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		tight = append(tight, appOpened("Mail", start), appOpened("Calendar", start.Add(time.Minute)))
	}
	patterns := detectSequential(tight)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	if patterns[0].Confidence != 0.95 {
		t.Fatalf("expected capped confidence 0.95, got %v", patterns[0].Confidence)
	}
}

func TestDetectSequential_SameAppRepeats(t *testing.T) {
	base := time.Date(2026, time.August, 24, 9, 0, 0, 0, time.UTC)
	evs := []events.Event{
		appOpened("Chrome", base),
		appOpened("Chrome", base.Add(time.Minute)),
		appOpened("Chrome", base.Add(time.Hour)),
		appOpened("Chrome", base.Add(time.Hour+time.Minute)),
	}

	patterns := detectSequential(evs)
	if len(patterns) != 1 {
		t.Fatalf("expected Chrome -> Chrome pattern, got %+v", patterns)
	}
	if patterns[0].Confidence < 0.7 {
		t.Fatalf("expected confidence >= 0.7, got %v", patterns[0].Confidence)
	}
	if !strings.Contains(patterns[0].Description, "Chrome -> Chrome") {
		t.Fatalf("unexpected description %q", patterns[0].Description)
	}
}

func TestDetectTimeBased(t *testing.T) {
	base := time.Date(2026, time.August, 24, 8, 0, 0, 0, time.UTC)
	var evs []events.Event
	for i := 0; i < 6; i++ {
		evs = append(evs, events.Event{
			Type:      "check_email",
			TimeOfDay: "morning",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	for i := 0; i < 2; i++ {
		evs = append(evs, events.Event{
			Type:      "play_music",
			TimeOfDay: "morning",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	patterns := detectTimeBased(evs)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern above the 0.4 cutoff, got %+v", patterns)
	}
	p := patterns[0]
	if p.TimePeriod != "morning" || p.Occurrences != 6 {
		t.Fatalf("unexpected pattern: %+v", p)
	}
	// 6 of 8 morning events
	if math.Abs(p.Confidence-0.75) > 1e-9 {
		t.Fatalf("expected confidence 0.75, got %v", p.Confidence)
	}
}

func TestDetectFrequency(t *testing.T) {
	base := time.Date(2026, time.August, 24, 8, 0, 0, 0, time.UTC)
	var evs []events.Event
	for i := 0; i < 4; i++ {
		evs = append(evs, events.Event{Type: "take_note", CreatedAt: base})
	}
	evs = append(evs, events.Event{Type: "play_music", CreatedAt: base})

	patterns := detectFrequency(evs)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 frequency pattern, got %+v", patterns)
	}
	// 4 of 5 events
	if math.Abs(patterns[0].Confidence-0.8) > 1e-9 {
		t.Fatalf("expected confidence 0.8, got %v", patterns[0].Confidence)
	}

	// Below three occurrences nothing is reported.
	few := []events.Event{
		{Type: "take_note", CreatedAt: base},
		{Type: "take_note", CreatedAt: base},
	}
	if patterns := detectFrequency(few); len(patterns) != 0 {
		t.Fatalf("two occurrences should not form a pattern, got %+v", patterns)
	}
}
