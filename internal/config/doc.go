// Package config defines the format-agnostic configuration model for
// exerunner: tool installations, target nodes, build steps and the optional
// result reporter. It also defines the Loader interface implemented by the
// format-specific packages (hcl, yamlcfg).
//
// The config.Model is the single source of truth for the app package. It is
// read-only once loaded; reconfiguration produces a new Model.
package config
