package rhythm

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rhythmwf/rhythm/internal/docstore"
	"github.com/rhythmwf/rhythm/internal/engine"
	"github.com/rhythmwf/rhythm/pkg/api"
	"github.com/rhythmwf/rhythm/pkg/hooks"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Workflow             = api.Workflow
	WorkflowDoc          = api.WorkflowDoc
	WorkflowStore        = api.WorkflowStore
	Backend              = api.Backend
	Step                 = api.Step
	StepSpec             = api.StepSpec
	TaskRun              = api.TaskRun
	TaskRecord           = api.TaskRecord
	Status               = api.Status
	PendingStep          = api.PendingStep
	PauseResult          = api.PauseResult
	ResumeResult         = api.ResumeResult
	ResumeOptions        = api.ResumeOptions
	DescribeOptions      = api.DescribeOptions
	WorkflowView         = api.WorkflowView
	StepView             = api.StepView
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	Hooks                = hooks.Hooks
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values for convenience.

const (
	StatusPending  = api.StatusPending
	StatusStarted  = api.StatusStarted
	StatusProgress = api.StatusProgress
	StatusRetry    = api.StatusRetry
	StatusRevoked  = api.StatusRevoked
	StatusFailure  = api.StatusFailure
	StatusSuccess  = api.StatusSuccess
)

// Config binds a workflow handle to its collaborators: the document store
// holding workflow documents, the execution backend running the actual
// work, and an optional observer for logging and metrics.
type Config struct {
	Store    WorkflowStore
	Backend  Backend
	Observer Observer
}

func (c Config) engineConfig() engine.Config {
	return engine.Config{
		Store:    c.Store,
		Backend:  c.Backend,
		Observer: c.Observer,
	}
}

// Create validates the step list, persists a new workflow document and
// returns a handle bound to it.
func Create(ctx context.Context, cfg Config, steps []StepSpec, name string) (Workflow, error) {
	return engine.Create(ctx, cfg.engineConfig(), steps, name)
}

// Load binds a handle to an existing workflow document by id.
func Load(ctx context.Context, cfg Config, id string) (Workflow, error) {
	return engine.Load(ctx, cfg.engineConfig(), id)
}

// NewHooks creates the execution-hook adapter that backends invoke around
// every unit of work to drive step sequencing.
func NewHooks(cfg Config) *Hooks {
	return hooks.New(cfg.Store, cfg.Backend, cfg.Observer)
}

// Store constructors
// These wrap the internal/docstore package so external callers never need
// to import internal packages.

// NewMemoryStore returns a non-durable in-memory WorkflowStore, best for
// tests and local development.
func NewMemoryStore() WorkflowStore {
	return docstore.NewMemoryStore()
}

// NewMongoStore returns a WorkflowStore that persists workflow documents in
// MongoDB. dbName defaults to "rhythm", collName to "workflow_meta".
func NewMongoStore(client *mongo.Client, dbName, collName string) WorkflowStore {
	return docstore.NewMongoStore(client, dbName, collName)
}

// NewRedisStore returns a WorkflowStore that persists workflow documents in
// Redis under the given key prefix (default "rhythm:").
func NewRedisStore(client *redis.Client, prefix string) WorkflowStore {
	return docstore.NewRedisStore(client, prefix)
}

// NewSQLiteStore returns a WorkflowStore that persists workflow documents
// in a SQLite database.
func NewSQLiteStore(db *sql.DB) (WorkflowStore, error) {
	return docstore.NewSQLiteStore(db)
}
