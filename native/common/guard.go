package common

import "errors"

// ErrModulePaused is returned by Guard when the named operation family is
// switched off.
var ErrModulePaused = errors.New("module paused")

// PauseView answers whether an operation family is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the view reports the module as paused. A nil
// view or empty module never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a PauseView backed by a fixed set of paused modules,
// typically loaded from configuration at startup.
type StaticPauses struct {
	paused map[string]bool
}

// NewStaticPauses builds a view with the listed modules paused.
func NewStaticPauses(modules ...string) *StaticPauses {
	paused := make(map[string]bool, len(modules))
	for _, module := range modules {
		if module == "" {
			continue
		}
		paused[module] = true
	}
	return &StaticPauses{paused: paused}
}

// IsPaused implements PauseView.
func (s *StaticPauses) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s.paused[module]
}
