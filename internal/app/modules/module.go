// Package modules contains the dependency modules assembled by the
// composition root. Each module owns one slice of the service and
// contributes handlers dependencies and River workers.
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"github.com/imc400/shopify-market-place/internal/api/handlers"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging.
	Name() string

	// ContributeServerDeps injects module-owned dependencies into the HTTP server deps.
	ContributeServerDeps(*handlers.ServerDeps)

	// RegisterWorkers registers module workers into a shared River worker registry.
	RegisterWorkers(*river.Workers)

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}
