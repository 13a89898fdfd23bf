// Package logging wraps log/slog with recap conventions: a compact console
// handler, a JSON handler for machine consumption, attr helpers, and context
// plumbing that surfaces episode/stage/correlation fields on every record.
package logging
