// Package pipeline contains the seven-stage orchestration core: the stage
// descriptor table, the dependency validator with its strict and
// artifact-aware modes, the file monitor that detects completed stages by the
// presence of their output artifacts, and the controller that sequences stage
// execution with skip-on-resume and partial-manifest failure semantics.
//
// The filesystem is the durable source of truth for what has been produced;
// the in-memory Episode value carries the bookkeeping for a single run.
package pipeline
