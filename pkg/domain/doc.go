// Package domain defines the core types shared across varflow.
//
// The main types are:
//   - VariableConfig: the declarative description of one variable
//   - Variable: the runtime record (state, value, options) owned by a session
//   - Snapshot: an immutable view of every variable in a session
//   - TimeRange: the window every query_values fetch runs over
package domain
