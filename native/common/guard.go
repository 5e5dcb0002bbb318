package common

import "errors"

// ErrModulePaused is returned by Guard when the named module is switched off.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the pause switch of a named module.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails when module is paused in p. A nil view or an empty module name
// is treated as active.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
