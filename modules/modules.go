// Package modules lists the unit modules compiled into the shmdag binary.
package modules

import (
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/specialistvlad/shmdag/modules/command"
	"github.com/specialistvlad/shmdag/modules/http_request"
	"github.com/specialistvlad/shmdag/modules/print"
)

// Core returns the definitive list of built-in modules.
func Core() []handlers.Module {
	return []handlers.Module{
		&print.Module{},
		&command.Module{},
		&http_request.Module{},
	}
}

// Registry returns a handler registry with every core module registered.
func Registry() *handlers.Handlers {
	return handlers.NewWithModules(Core()...)
}
