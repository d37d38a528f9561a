// Package app wires configuration loading, installation resolution and step
// execution into a runnable application, decoupled from any specific
// entrypoint like the CLI.
package app
