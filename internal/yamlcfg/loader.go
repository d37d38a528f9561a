// Package yamlcfg implements config.Loader for YAML files.
package yamlcfg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vk/exerunner/internal/config"
	"github.com/vk/exerunner/internal/ctxlog"
	"github.com/vk/exerunner/internal/fsutil"
	"gopkg.in/yaml.v3"
)

type document struct {
	Installations []installation `yaml:"installations"`
	Nodes         []node         `yaml:"nodes"`
	Steps         []step         `yaml:"steps"`
	Reporter      *reporter      `yaml:"reporter"`
}

type installation struct {
	Name        string `yaml:"name"`
	Home        string `yaml:"home"`
	DefaultArgs string `yaml:"default_args"`
}

type node struct {
	Name          string            `yaml:"name"`
	Platform      string            `yaml:"platform"`
	ToolLocations map[string]string `yaml:"tool_locations"`
}

type step struct {
	Name         string `yaml:"name"`
	Installation string `yaml:"installation"`
	Args         string `yaml:"args"`
	FailBuild    *bool  `yaml:"fail_build"`
}

type reporter struct {
	URL                string `yaml:"url"`
	Namespace          string `yaml:"namespace"`
	Event              string `yaml:"event"`
	Timeout            string `yaml:"timeout"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Loader is the YAML implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new YAML configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".yaml", ".yml"}
}

// Load decodes every YAML file found under paths. A file may hold several
// documents separated by "---".
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFiles(paths, l.Extensions()...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered YAML files.", "count", len(files))

	model := config.NewModel()
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		for {
			var doc document
			if err := dec.Decode(&doc); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("failed to decode YAML file %s: %w", file, err)
			}
			partial, err := translate(&doc)
			if err != nil {
				return nil, fmt.Errorf("in YAML file %s: %w", file, err)
			}
			if err := config.Merge(model, partial); err != nil {
				return nil, fmt.Errorf("in YAML file %s: %w", file, err)
			}
		}
	}
	return model, nil
}

func translate(doc *document) (*config.Model, error) {
	m := config.NewModel()
	for _, in := range doc.Installations {
		if in.Name == "" {
			return nil, errors.New("installation without a name")
		}
		m.Installations[in.Name] = &config.Installation{
			Name:        in.Name,
			Home:        strings.TrimSpace(in.Home),
			DefaultArgs: strings.TrimSpace(in.DefaultArgs),
		}
	}
	for _, n := range doc.Nodes {
		if n.Name == "" {
			return nil, errors.New("node without a name")
		}
		m.Nodes[n.Name] = &config.Node{
			Name:          n.Name,
			Platform:      strings.ToLower(n.Platform),
			ToolLocations: n.ToolLocations,
		}
	}
	for _, s := range doc.Steps {
		if s.Name == "" {
			return nil, errors.New("step without a name")
		}
		if m.Step(s.Name) != nil {
			return nil, fmt.Errorf("step %q is declared more than once", s.Name)
		}
		failBuild := config.DefaultFailBuild
		if s.FailBuild != nil {
			failBuild = *s.FailBuild
		}
		m.Steps = append(m.Steps, &config.Step{
			Name:         s.Name,
			Installation: s.Installation,
			Args:         strings.TrimSpace(s.Args),
			FailBuild:    failBuild,
		})
	}
	if r := doc.Reporter; r != nil {
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
