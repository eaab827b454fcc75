// Package celery implements the execution backend contract against a
// Celery deployment: tasks are published to a Redis broker in Celery's
// protocol v2 message format, and run status and results are read from the
// MongoDB result backend's celery_taskmeta collection.
//
// It is a client only; the actual work is executed by Celery workers,
// whose WorkflowTask lifecycle calls back into the sequencing hooks.
package celery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rhythmwf/rhythm/pkg/api"
)

const (
	defaultQueue    = "celery"
	defaultDatabase = "celery"
	taskmetaColl    = "celery_taskmeta"

	opTimeout = 5 * time.Second
)

// Backend dispatches tasks to a Redis broker and reads results from a
// MongoDB result backend.
type Backend struct {
	broker  *redis.Client
	results *mongo.Collection
	queue   string
	log     *slog.Logger
}

var _ api.Backend = (*Backend)(nil)

// Option customizes a Backend.
type Option func(*Backend)

// WithQueue routes dispatched tasks to the named queue instead of the
// default "celery" queue.
func WithQueue(name string) Option {
	return func(b *Backend) {
		if name != "" {
			b.queue = name
		}
	}
}

// WithDatabase reads task metadata from the named Mongo database instead
// of the default "celery" database.
func WithDatabase(name string) Option {
	return func(b *Backend) {
		if name != "" {
			b.results = b.results.Database().Client().Database(name).Collection(taskmetaColl)
		}
	}
}

// WithLogger sets the logger used for recoverable decode problems.
func WithLogger(log *slog.Logger) Option {
	return func(b *Backend) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBackend creates a Celery backend over the given broker and result
// store clients.
func NewBackend(broker *redis.Client, results *mongo.Client, opts ...Option) *Backend {
	b := &Backend{
		broker:  broker,
		results: results.Database(defaultDatabase).Collection(taskmetaColl),
		queue:   defaultQueue,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dispatch publishes a protocol v2 task message to the broker queue and
// returns the generated task id. Fire-and-forget: a worker picks the
// message up whenever one is available.
func (b *Backend) Dispatch(ctx context.Context, task string, args []any, kwargs map[string]any) (string, error) {
	msg, err := newMessage(task, b.queue, args, kwargs)
	if err != nil {
		return "", fmt.Errorf("encode task %s: %w", task, err)
	}
	raw, err := msg.encode()
	if err != nil {
		return "", fmt.Errorf("encode task %s: %w", task, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := b.broker.LPush(ctx, b.queue, raw).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	return msg.taskID(), nil
}

// TaskStatus reports the stored status of a run. Celery result backends
// report PENDING for task ids they have no record of, which is exactly the
// behavior the status-derivation logic relies on for runs that have been
// dispatched but not yet picked up.
func (b *Backend) TaskStatus(ctx context.Context, taskID string) (api.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc taskmetaDoc
	err := b.results.FindOne(ctx, taskmetaFilter(taskID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return api.StatusPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	return api.Status(doc.Status), nil
}

// TaskRecord returns the stored record of a run, or nil if the result
// backend has none. An undecodable stored result surfaces as a nil Result,
// never as an error.
func (b *Backend) TaskRecord(ctx context.Context, taskID string) (*api.TaskRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc taskmetaDoc
	err := b.results.FindOne(ctx, taskmetaFilter(taskID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}

	record, decodeErr := doc.record()
	if decodeErr != nil {
		b.log.Warn("unable to decode stored task result",
			"task_id", taskID, "err", decodeErr)
	}
	return record, nil
}

// Revoke publishes a revoke command on the worker control channel.
// Best-effort and asynchronous: workers that never see the command, or
// tasks that finished already, are unaffected.
func (b *Backend) Revoke(ctx context.Context, taskID string, terminate bool) error {
	raw, err := newRevokeMessage(taskID, terminate).encode()
	if err != nil {
		return fmt.Errorf("encode revoke %s: %w", taskID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := b.broker.Publish(ctx, pidboxChannel, raw).Err(); err != nil {
		return fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	return nil
}
