package hcl

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/exerunner/internal/config"
	"github.com/vk/exerunner/internal/ctxlog"
	"github.com/vk/exerunner/internal/fsutil"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".hcl"}
}

// Load parses every .hcl file found under paths and merges the blocks into
// a single model. Files are processed in discovery order.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(paths, l.Extensions()...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	model := config.NewModel()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		partial, err := l.translate(ctx, &root, parser.Files())
		if err != nil {
			return nil, fmt.Errorf("in HCL file %s: %w", file, err)
		}
		if err := config.Merge(model, partial); err != nil {
			return nil, fmt.Errorf("in HCL file %s: %w", file, err)
		}
	}

	logger.Debug("HCL loading complete.", "installations", len(model.Installations), "nodes", len(model.Nodes), "steps", len(model.Steps))
	return model, nil
}

func (l *Loader) translate(ctx context.Context, root *fileRoot, files map[string]*hcl.File) (*config.Model, error) {
	m := config.NewModel()

	for _, b := range root.Installations {
		home, err := rawString(ctx, b.Home, "home", files)
		if err != nil {
			return nil, fmt.Errorf("installation %q: %w", b.Name, err)
		}
		args, err := rawString(ctx, b.DefaultArgs, "default_args", files)
		if err != nil {
			return nil, fmt.Errorf("installation %q: %w", b.Name, err)
		}
		m.Installations[b.Name] = &config.Installation{
			Name:        b.Name,
			Home:        strings.TrimSpace(home),
			DefaultArgs: strings.TrimSpace(args),
		}
	}

	for _, b := range root.Nodes {
		locations, err := rawStringMap(ctx, b.ToolLocations, "tool_locations", files)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", b.Name, err)
		}
		m.Nodes[b.Name] = &config.Node{
			Name:          b.Name,
			Platform:      strings.ToLower(b.Platform),
			ToolLocations: locations,
		}
	}

	for _, b := range root.Steps {
		args, err := rawString(ctx, b.Args, "args", files)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", b.Name, err)
		}
		failBuild := config.DefaultFailBuild
		if b.FailBuild != nil {
			failBuild = *b.FailBuild
		}
		if m.Step(b.Name) != nil {
			return nil, fmt.Errorf("step %q is declared more than once", b.Name)
		}
		m.Steps = append(m.Steps, &config.Step{
			Name:         b.Name,
			Installation: b.Installation,
			Args:         strings.TrimSpace(args),
			FailBuild:    failBuild,
		})
	}

	if r := root.Reporter; r != nil {
		m.Reporter = &config.Reporter{
			URL:                r.URL,
			Namespace:          r.Namespace,
			Event:              r.Event,
			Timeout:            r.Timeout,
			InsecureSkipVerify: r.InsecureSkipVerify,
		}
	}
	return m, nil
}
