package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rhythmwf/rhythm/internal/testutil"
)

type MongoStoreTestSuite struct {
	suite.Suite
	client *mongo.Client
	store  *MongoStore
	ctx    context.Context
}

func TestMongoStoreSuite(t *testing.T) {
	uri := testutil.GetMongoURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("mongo connect failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	s := new(MongoStoreTestSuite)
	s.client = client
	suite.Run(t, s)
}

func (s *MongoStoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewMongoStore(s.client, "rhythm_test", "workflow_meta")
	s.Require().NoError(s.store.coll.Drop(s.ctx))
}

func (s *MongoStoreTestSuite) TestContract() {
	exerciseStore(s.T(), s.store)
}

func (s *MongoStoreTestSuite) TestDefaults() {
	store := NewMongoStore(s.client, "", "")
	s.Equal("rhythm", store.coll.Database().Name())
	s.Equal("workflow_meta", store.coll.Name())
}

func (s *MongoStoreTestSuite) TestRunHistorySurvivesManyUpdates() {
	doc := sampleDoc("wf-history")
	s.Require().NoError(s.store.Insert(s.ctx, doc))

	for i := 0; i < 5; i++ {
		got, err := s.store.Get(s.ctx, "wf-history")
		s.Require().NoError(err)
		got.Steps[1].TaskRuns = append(got.Steps[1].TaskRuns, sampleDoc("x").Steps[0].TaskRuns[0])
		got.UpdatedAt = time.Now().UTC()
		s.Require().NoError(s.store.Update(s.ctx, got))
	}

	final, err := s.store.Get(s.ctx, "wf-history")
	s.Require().NoError(err)
	s.Len(final.Steps[1].TaskRuns, 5)
	s.Len(final.Steps[0].TaskRuns, 2)
}
