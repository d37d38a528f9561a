package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/exerunner/internal/config"
	"github.com/vk/exerunner/internal/ctxlog"
)

// ErrInstallationNotFound is returned when no installation has the
// requested name.
var ErrInstallationNotFound = errors.New("installation not found")

// Resolver produces installations specialized for where a step runs.
type Resolver struct {
	Store *Store
}

// NewResolver creates a resolver reading from store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{Store: store}
}

// Resolve looks up name and applies, in order, target translation for node
// and environment expansion with env. A nil env skips the environment step.
func (r *Resolver) Resolve(ctx context.Context, name string, node *config.Node, env map[string]string) (Installation, error) {
	logger := ctxlog.FromContext(ctx).With("installation", name)

	inst, ok := r.Store.Lookup(name)
	if !ok {
		return Installation{}, fmt.Errorf("%w: %q", ErrInstallationNotFound, name)
	}

	inst = SpecializeForTarget(inst, node)
	if env != nil {
		inst = SpecializeForEnvironment(inst, env)
	}

	nodeName := ""
	if node != nil {
		nodeName = node.Name
	}
	logger.Debug("Resolved installation.", "node", nodeName, "home", inst.Home)
	return inst, nil
}
