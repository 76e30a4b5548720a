// Package resolvers implements one loader per variable kind and the
// reconciliation policy shared by query_values and custom variables.
//
// query_values is the only kind that fetches: it renders its query template,
// substitutes already-resolved variables into $name references and asks the
// values backend for the target field's distinct values. A reference to a
// variable that is not resolved yet returns ErrUnresolvedReference, which the
// orchestrator treats as a deferral rather than a failure.
package resolvers
