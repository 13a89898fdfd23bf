// Package main hosts the recap CLI entrypoint and command graph.
//
// The Cobra-based command tree wires terminal invocations into the pipeline
// controller: full and partial runs, resume from an existing episode root,
// stage-selection validation, session history from the sqlite store, and
// configuration scaffolding. It centralizes configuration resolution and
// structured logging setup so subcommands can focus on user experience.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
