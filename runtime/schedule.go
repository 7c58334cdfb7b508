package runtime

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseSchedule parses a schedule string as either a cron expression
// ("0 3 * * *", "@daily") or a Go duration ("6h", "90m"). Durations become
// constant-delay schedules.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	if schedule, err := parser.Parse(spec); err == nil {
		return schedule, nil
	}

	delay, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule %q is neither a cron expression nor a duration", spec)
	}
	if delay <= 0 {
		return nil, fmt.Errorf("schedule duration %q must be positive", spec)
	}
	return cron.ConstantDelaySchedule{Delay: delay}, nil
}
