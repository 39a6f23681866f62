// Package common holds the admission checks shared by native modules: the
// operator pause switch and per-account quotas.
package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused rejects state changes while an operator has switched the
// module off. Queries keep working.
var ErrModulePaused = errors.New("module paused")

// PauseView reports pause switches by module name. The protocol config's
// [pauses] table and the daemon's admin toggle both implement it.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when module is switched off. A nil view
// never pauses anything.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
