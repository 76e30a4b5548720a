// Package orchestrator implements the variable resolution engine.
//
// A Session owns one variable set. It derives the dependency graph,
// schedules type-specific loads on the worker pool as soon as a variable's
// parents are resolved, and publishes a snapshot after every state change.
// When the time range changes every variable is reloaded; when a selection
// changes only its descendants are.
//
// The Manager keeps the open sessions and expires idle ones.
package orchestrator
