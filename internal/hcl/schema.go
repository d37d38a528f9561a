package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a configuration file may contain.
type fileRoot struct {
	Installations []*installationBlock `hcl:"installation,block"`
	Nodes         []*nodeBlock         `hcl:"node,block"`
	Steps         []*stepBlock         `hcl:"step,block"`
	Reporter      *reporterBlock       `hcl:"reporter,block"`
	Remain        hcl.Body             `hcl:",remain"`
}

type installationBlock struct {
	Name        string         `hcl:"name,label"`
	Home        hcl.Expression `hcl:"home"`
	DefaultArgs hcl.Expression `hcl:"default_args,optional"`
}

type nodeBlock struct {
	Name          string         `hcl:"name,label"`
	Platform      string         `hcl:"platform,optional"`
	ToolLocations hcl.Expression `hcl:"tool_locations,optional"`
}

type stepBlock struct {
	Name         string         `hcl:"name,label"`
	Installation string         `hcl:"installation"`
	Args         hcl.Expression `hcl:"args,optional"`
	FailBuild    *bool          `hcl:"fail_build,optional"`
}

type reporterBlock struct {
	URL                string `hcl:"url"`
	Namespace          string `hcl:"namespace,optional"`
	Event              string `hcl:"event,optional"`
	Timeout            string `hcl:"timeout,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}
