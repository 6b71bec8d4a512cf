package poster

import (
	"fmt"
	"strings"
)

// KeyFor derives the registry key: class plus the first target.
func KeyFor(class Class, targets []Target) string {
	if len(targets) == 0 {
		return string(class) + ":"
	}
	return string(class) + ":" + targets[0].String()
}

func (s JobSpec) Key() string { return KeyFor(s.Class, s.Targets) }

// Total is the number of publish attempts the job makes if it runs to the end.
func (s JobSpec) Total() int { return s.RepeatCount * len(s.Targets) }

// Validate reports spec problems wrapped in ErrInvalidSpec.
func (s JobSpec) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidSpec, fmt.Sprintf(format, args...))
	}
	switch s.Class {
	case ClassPeriodic, ClassBulk, ClassChat:
	default:
		return invalid("unknown class %q", s.Class)
	}
	if len(s.Targets) == 0 {
		return invalid("no targets")
	}
	for _, t := range s.Targets {
		if t == 0 {
			return invalid("target id must be non-zero")
		}
	}
	if s.Class == ClassPeriodic && len(s.Targets) != 1 {
		return invalid("periodic job needs exactly one target, got %d", len(s.Targets))
	}
	if s.Replace && s.Class != ClassPeriodic {
		return invalid("replace mode is only valid for periodic jobs")
	}
	if s.RetractAfter < 0 {
		return invalid("retract_after must be >= 0")
	}
	if s.RetractAfter > 0 && s.Class != ClassChat {
		return invalid("retract_after is only valid for chat jobs")
	}
	if strings.TrimSpace(s.Payload) == "" {
		return invalid("empty payload")
	}
	if s.RepeatCount <= 0 {
		return invalid("repeat count must be positive, got %d", s.RepeatCount)
	}
	if s.Interval < 0 {
		return invalid("interval must be >= 0")
	}
	if s.NotifyEvery < 0 {
		return invalid("notify_every must be >= 0")
	}
	return nil
}
