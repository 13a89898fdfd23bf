// Package services holds cross-cutting helpers shared by the stage adapters:
// sentinel error markers with classification semantics and context annotations
// (episode, stage, correlation id) that the logging package turns into
// structured fields.
package services
