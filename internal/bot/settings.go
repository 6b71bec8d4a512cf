package bot

import (
	"slices"
	"strings"
	"sync"
	"time"

	"vkrelay/internal/poster"
)

// Settings are the runtime knobs operators can see or change from chat.
// Config reloads overwrite them except for values changed from chat.
type Settings struct {
	mu sync.RWMutex

	template           string
	periodicMaxRepeats int
	defaultInterval    time.Duration
	deleteDelay        time.Duration
	groups             []poster.Target
	chats              []poster.Target

	templateOverridden bool
	intervalOverridden bool
	deleteOverridden   bool
	targetsOverridden  bool
}

type SettingsConfig struct {
	Template           string
	PeriodicMaxRepeats int
	// DefaultInterval is also the round delay of /spamgroups and /spamchats.
	DefaultInterval time.Duration
	DeleteDelay     time.Duration
	Groups          []poster.Target
	Chats           []poster.Target
}

func NewSettings(cfg SettingsConfig) *Settings {
	s := &Settings{}
	s.Apply(cfg)
	return s
}

func (s *Settings) Apply(cfg SettingsConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.templateOverridden {
		s.template = strings.TrimSpace(cfg.Template)
	}
	s.periodicMaxRepeats = cfg.PeriodicMaxRepeats
	if s.periodicMaxRepeats <= 0 {
		s.periodicMaxRepeats = 1000
	}
	if !s.intervalOverridden {
		s.defaultInterval = cfg.DefaultInterval
		if s.defaultInterval <= 0 {
			s.defaultInterval = time.Minute
		}
	}
	if !s.deleteOverridden {
		s.deleteDelay = cfg.DeleteDelay
		if s.deleteDelay <= 0 {
			s.deleteDelay = 10 * time.Second
		}
	}
	if !s.targetsOverridden {
		s.groups = dedupTargets(cfg.Groups)
		s.chats = dedupTargets(cfg.Chats)
	}
}

func (s *Settings) Template() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.template
}

// SetTemplate replaces the template until restart. Blank text clears it.
func (s *Settings) SetTemplate(text string) {
	s.mu.Lock()
	s.template = strings.TrimSpace(text)
	s.templateOverridden = true
	s.mu.Unlock()
}

func (s *Settings) PeriodicMaxRepeats() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.periodicMaxRepeats
}

func (s *Settings) DefaultInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultInterval
}

func (s *Settings) SetDefaultInterval(d time.Duration) {
	s.mu.Lock()
	s.defaultInterval = d
	s.intervalOverridden = true
	s.mu.Unlock()
}

func (s *Settings) DeleteDelay() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleteDelay
}

func (s *Settings) SetDeleteDelay(d time.Duration) {
	s.mu.Lock()
	s.deleteDelay = d
	s.deleteOverridden = true
	s.mu.Unlock()
}

func (s *Settings) Groups() []poster.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.groups)
}

func (s *Settings) Chats() []poster.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chats)
}

// AddSaved appends t to the group or chat list. It reports false for a
// duplicate.
func (s *Settings) AddSaved(kind savedKind, t poster.Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.list(kind)
	if slices.Contains(*list, t) {
		return false
	}
	*list = append(*list, t)
	s.targetsOverridden = true
	return true
}

// RemoveSaved drops t from the group or chat list. It reports false when
// t was not saved.
func (s *Settings) RemoveSaved(kind savedKind, t poster.Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.list(kind)
	i := slices.Index(*list, t)
	if i < 0 {
		return false
	}
	*list = slices.Delete(*list, i, i+1)
	s.targetsOverridden = true
	return true
}

func (s *Settings) list(kind savedKind) *[]poster.Target {
	if kind == savedChat {
		return &s.chats
	}
	return &s.groups
}

// payload returns text, or the template when text is blank.
func (s *Settings) payload(text string) string {
	if t := strings.TrimSpace(text); t != "" {
		return t
	}
	return s.Template()
}

func dedupTargets(in []poster.Target) []poster.Target {
	out := make([]poster.Target, 0, len(in))
	for _, t := range in {
		if t != 0 && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
