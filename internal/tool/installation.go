// Package tool resolves named tool installations for a target node and
// environment.
package tool

import (
	"github.com/vk/exerunner/internal/config"
	"github.com/vk/exerunner/internal/expand"
)

// Installation is an installed executable known by name. Values are never
// mutated; specialization returns a copy.
type Installation struct {
	Name string
	// Home is the path to the executable, possibly with unexpanded $VAR
	// references until SpecializeForEnvironment has been applied.
	Home        string
	DefaultArgs string
}

// FromConfig converts a configured installation.
func FromConfig(c *config.Installation) Installation {
	return Installation{Name: c.Name, Home: c.Home, DefaultArgs: c.DefaultArgs}
}

// SpecializeForTarget returns inst with its home translated for node: the
// node's tool location for inst.Name wins over the configured home. A nil
// node leaves the home unchanged.
func SpecializeForTarget(inst Installation, node *config.Node) Installation {
	if node == nil {
		return inst
	}
	if home, ok := node.ToolLocations[inst.Name]; ok && home != "" {
		inst.Home = home
	}
	return inst
}

// SpecializeForEnvironment returns inst with environment references in its
// home expanded. Unknown references are kept as written.
func SpecializeForEnvironment(inst Installation, env map[string]string) Installation {
	inst.Home = expand.ReplaceMacro(inst.Home, env)
	return inst
}
