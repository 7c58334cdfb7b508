package runtime

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func TestParseSchedule_Duration(t *testing.T) {
	schedule, err := ParseSchedule("6h")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	constant, ok := schedule.(cron.ConstantDelaySchedule)
	if !ok {
		t.Fatalf("expected ConstantDelaySchedule, got %T", schedule)
	}
	if constant.Delay != 6*time.Hour {
		t.Fatalf("expected 6h delay, got %v", constant.Delay)
	}
}

func TestParseSchedule_Cron(t *testing.T) {
	schedule, err := ParseSchedule("0 3 * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	next := schedule.Next(time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC))
	if next.Hour() != 3 {
		t.Fatalf("expected next run at 03:00, got %v", next)
	}
}

func TestParseSchedule_Descriptor(t *testing.T) {
	if _, err := ParseSchedule("@daily"); err != nil {
		t.Fatalf("ParseSchedule(@daily): %v", err)
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, spec := range []string{"", "not-a-schedule", "-5m"} {
		if _, err := ParseSchedule(spec); err == nil {
			t.Errorf("expected error for %q", spec)
		}
	}
}
