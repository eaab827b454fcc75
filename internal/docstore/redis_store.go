package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rhythmwf/rhythm/pkg/api"
)

// RedisStore is a WorkflowStore backed by Redis. It uses a simple key
// structure:
//
//	<prefix>wf:<id> => JSON-encoded workflow document
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ api.WorkflowStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "rhythm:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rhythm:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + "wf:" + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*api.WorkflowDoc, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, api.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	var doc api.WorkflowDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", id, err)
	}
	return &doc, nil
}

func (s *RedisStore) Insert(ctx context.Context, doc *api.WorkflowDoc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(doc.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("workflow %s already exists", doc.ID)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, doc *api.WorkflowDoc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	// SET XX: replace only, missing documents are an error.
	ok, err := s.client.SetXX(ctx, s.key(doc.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	if !ok {
		return api.ErrWorkflowNotFound
	}
	return nil
}
