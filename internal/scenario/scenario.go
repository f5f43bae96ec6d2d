// Package scenario describes span trees in TOML and plays them against a
// tracer.
package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Mode says where a step runs relative to its parent step.
type Mode string

const (
	// ModeInline runs on the parent's cursor, nested in the parent's span.
	ModeInline Mode = "inline"
	// ModeSpawn runs on a new goroutine the parent joins before ending.
	ModeSpawn Mode = "spawn"
	// ModeDetach runs on a new goroutine the parent never joins.
	ModeDetach Mode = "detach"
)

var (
	// ErrUnknownKey is returned for TOML keys no step field decodes.
	ErrUnknownKey = errors.New("unknown key")
	// ErrInvalidStep is returned for steps that cannot be played.
	ErrInvalidStep = errors.New("invalid step")
)

//go:embed default.toml
var defaultSource []byte

// Scenario is a named forest of steps.
type Scenario struct {
	Name  string `toml:"name"`
	Steps []Step `toml:"span"`
}

// Step opens one span, plays its children, holds, then ends the span.
//
//nolint:govet // Field order follows the TOML layout
type Step struct {
	Label string `toml:"label"`
	Mode  Mode   `toml:"mode"`
	// Parent names an ancestor step to parent on instead of the enclosing one.
	Parent string `toml:"parent"`
	Hold   string `toml:"hold"`
	Root   bool   `toml:"root"`
	Steps  []Step `toml:"span"`

	hold time.Duration
}

// HoldDuration returns the parsed hold.
func (s *Step) HoldDuration() time.Duration {
	return s.hold
}

// Default returns the built-in scenario.
func Default() *Scenario {
	sc, err := Parse(defaultSource)
	if err != nil {
		panic(fmt.Sprintf("scenario: built-in scenario: %v", err))
	}
	return sc
}

// DefaultSource returns the TOML text of the built-in scenario.
func DefaultSource() []byte {
	return append([]byte(nil), defaultSource...)
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	md, err := toml.Decode(string(data), &sc)
	if err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, undecoded[0])
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Count returns the number of steps in the scenario.
func (sc *Scenario) Count() int {
	var count func(steps []Step) int
	count = func(steps []Step) int {
		n := len(steps)
		for i := range steps {
			n += count(steps[i].Steps)
		}
		return n
	}
	return count(sc.Steps)
}

func (sc *Scenario) validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%w: no spans", ErrInvalidStep)
	}
	for i := range sc.Steps {
		if err := sc.Steps[i].validate(nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Step) validate(ancestors []string) error {
	if s.Mode == "" {
		s.Mode = ModeInline
	}
	switch s.Mode {
	case ModeInline, ModeSpawn, ModeDetach:
	default:
		return fmt.Errorf("%w: %q: mode %q", ErrInvalidStep, s.Label, s.Mode)
	}

	if s.Hold != "" {
		d, err := time.ParseDuration(s.Hold)
		if err != nil {
			return fmt.Errorf("%w: %q: hold: %v", ErrInvalidStep, s.Label, err)
		}
		if d < 0 {
			return fmt.Errorf("%w: %q: negative hold %s", ErrInvalidStep, s.Label, s.Hold)
		}
		s.hold = d
	}

	if s.Root && s.Parent != "" {
		return fmt.Errorf("%w: %q: root span cannot name a parent", ErrInvalidStep, s.Label)
	}
	if s.Parent != "" && !contains(ancestors, s.Parent) {
		return fmt.Errorf("%w: %q: parent %q is not an enclosing span", ErrInvalidStep, s.Label, s.Parent)
	}

	ancestors = append(ancestors[:len(ancestors):len(ancestors)], s.Label)
	for i := range s.Steps {
		if err := s.Steps[i].validate(ancestors); err != nil {
			return err
		}
	}
	return nil
}

func contains(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
