// Package hcl implements config.Loader for HCL files.
//
// String attributes that are expanded per token at run time (home,
// default_args, args, tool_locations values) are kept as raw source text, so
// that "${WORKSPACE}" reaches the expander instead of being evaluated while
// the file is decoded.
package hcl
