package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rhythmwf/rhythm/pkg/api"
)

// MongoStore is a WorkflowStore backed by MongoDB, one document per
// workflow. Updates are full-document replaces; there are no
// cross-document transactions.
type MongoStore struct {
	coll *mongo.Collection
}

var _ api.WorkflowStore = (*MongoStore)(nil)

const mongoOpTimeout = 5 * time.Second

// NewMongoStore creates a Mongo-backed workflow store.
// dbName defaults to "rhythm" if empty, collName defaults to
// "workflow_meta".
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	if dbName == "" {
		dbName = "rhythm"
	}
	if collName == "" {
		collName = "workflow_meta"
	}
	return &MongoStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoWorkflowDoc struct {
	ID        string         `bson:"_id"`
	Name      string         `bson:"name,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
	Steps     []mongoStepDoc `bson:"steps"`
}

type mongoStepDoc struct {
	Name     string        `bson:"name"`
	Task     string        `bson:"task"`
	TaskRuns []mongoRunDoc `bson:"task_runs,omitempty"`
}

type mongoRunDoc struct {
	TaskID    string     `bson:"task_id"`
	DateStart time.Time  `bson:"date_start"`
	EndTime   *time.Time `bson:"end_time,omitempty"`
}

func toMongoDoc(doc *api.WorkflowDoc) mongoWorkflowDoc {
	out := mongoWorkflowDoc{
		ID:        doc.ID,
		Name:      doc.Name,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		Steps:     make([]mongoStepDoc, len(doc.Steps)),
	}
	for i, step := range doc.Steps {
		ms := mongoStepDoc{Name: step.Name, Task: step.Task}
		for _, run := range step.TaskRuns {
			ms.TaskRuns = append(ms.TaskRuns, mongoRunDoc(run))
		}
		out.Steps[i] = ms
	}
	return out
}

func fromMongoDoc(doc mongoWorkflowDoc) *api.WorkflowDoc {
	out := &api.WorkflowDoc{
		ID:        doc.ID,
		Name:      doc.Name,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
		Steps:     make([]api.Step, len(doc.Steps)),
	}
	for i, step := range doc.Steps {
		st := api.Step{Name: step.Name, Task: step.Task}
		for _, run := range step.TaskRuns {
			r := api.TaskRun(run)
			r.DateStart = r.DateStart.UTC()
			st.TaskRuns = append(st.TaskRuns, r)
		}
		out.Steps[i] = st
	}
	return out
}

func (s *MongoStore) Get(ctx context.Context, id string) (*api.WorkflowDoc, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var doc mongoWorkflowDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, api.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	return fromMongoDoc(doc), nil
}

func (s *MongoStore) Insert(ctx context.Context, doc *api.WorkflowDoc) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	if _, err := s.coll.InsertOne(ctx, toMongoDoc(doc)); err != nil {
		return fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, doc *api.WorkflowDoc) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, toMongoDoc(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrBackendUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return api.ErrWorkflowNotFound
	}
	return nil
}
