// Package api defines the public types and contracts of the rhythm workflow
// engine: the persisted workflow document model, the closed task-status
// vocabulary, the WorkflowStore and Backend collaborator interfaces, and the
// Observer used for logging and metrics.
//
// Most applications import the root rhythm package, which re-exports
// everything here and provides constructors.
package api
