// Package session persists pipeline run history in SQLite. It records
// sessions, per-stage outcomes, and progress events so completed and failed
// runs can be inspected after the fact. Resume decisions never consult the
// store; artifacts on disk remain authoritative.
package session
