// Package docstore provides the WorkflowStore implementations: in-memory,
// MongoDB, Redis and SQLite. All of them persist whole workflow documents;
// updates are full-document replaces with no cross-document transactions.
package docstore
