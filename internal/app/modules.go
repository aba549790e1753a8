package app

import (
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/specialistvlad/shmdag/modules"
)

// coreModules is the definitive list of all modules that are compiled into
// the shmdag binary. Worker processes resolve payloads against the same list.
var coreModules = modules.Core()

func newRegistry(mods []handlers.Module) *handlers.Handlers {
	if len(mods) == 0 {
		mods = coreModules
	}
	return handlers.NewWithModules(mods...)
}
