package config

import (
	"fmt"
	"strings"
)

// Platform names accepted for a Node.
const (
	PlatformPOSIX   = "posix"
	PlatformWindows = "windows"
)

// DefaultFailBuild is the fail policy of a step that does not set one.
const DefaultFailBuild = true

// Model is the unified, format-agnostic representation of the configuration.
type Model struct {
	Installations map[string]*Installation
	Nodes         map[string]*Node
	Steps         []*Step
	Reporter      *Reporter
}

// NewModel returns an empty Model with its maps allocated.
func NewModel() *Model {
	return &Model{
		Installations: make(map[string]*Installation),
		Nodes:         make(map[string]*Node),
	}
}

// Installation is a named reference to an installed executable.
type Installation struct {
	Name string
	// Home is the path to the executable. It may contain $VAR references.
	Home        string
	DefaultArgs string
}

// Node is a target machine on which steps run.
type Node struct {
	Name     string
	Platform string
	// ToolLocations maps installation names to node-specific home paths.
	ToolLocations map[string]string
}

// Step is a configured build step.
type Step struct {
	Name         string
	Installation string
	Args         string
	FailBuild    bool
}

// Reporter configures where step results are published.
type Reporter struct {
	URL                string
	Namespace          string
	Event              string
	Timeout            string
	InsecureSkipVerify bool
}

// Step returns the step with the given name, or nil.
func (m *Model) Step(name string) *Step {
	for _, s := range m.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Merge folds src into dst. Installations and nodes declared again replace
// earlier declarations, a later reporter block replaces an earlier one, and
// a step name may only be declared once.
func Merge(dst, src *Model) error {
	if src == nil {
		return nil
	}
	for name, inst := range src.Installations {
		dst.Installations[name] = inst
	}
	for name, node := range src.Nodes {
		dst.Nodes[name] = node
	}
	for _, s := range src.Steps {
		if dst.Step(s.Name) != nil {
			return fmt.Errorf("step %q is declared more than once", s.Name)
		}
		dst.Steps = append(dst.Steps, s)
	}
	if src.Reporter != nil {
		dst.Reporter = src.Reporter
	}
	return nil
}

// Validate checks cross references within the model.
func (m *Model) Validate() error {
	for name, inst := range m.Installations {
		if name == "" {
			return fmt.Errorf("installation with empty name")
		}
		if strings.TrimSpace(inst.Home) == "" {
			return fmt.Errorf("installation %q: home is required", name)
		}
	}
	for name, n := range m.Nodes {
		switch n.Platform {
		case "", PlatformPOSIX, PlatformWindows:
		default:
			return fmt.Errorf("node %q: unknown platform %q", name, n.Platform)
		}
	}
	for _, s := range m.Steps {
		if s.Installation == "" {
			return fmt.Errorf("step %q: installation is required", s.Name)
		}
	}
	return nil
}
