package celery

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/rhythmwf/rhythm/pkg/api"
)

// taskmetaDoc mirrors the documents Celery's MongoDB result backend writes
// to celery_taskmeta. With result_extended enabled the worker also stores
// the task's original args and kwargs, which resume uses to re-dispatch a
// step with the arguments of its failed run.
type taskmetaDoc struct {
	ID       string     `bson:"_id"`
	Status   string     `bson:"status"`
	Result   any        `bson:"result,omitempty"`
	Args     []any      `bson:"args,omitempty"`
	Kwargs   bson.M     `bson:"kwargs,omitempty"`
	DateDone *time.Time `bson:"date_done,omitempty"`
}

func taskmetaFilter(taskID string) bson.M {
	return bson.M{"_id": taskID}
}

// record converts the stored document into a TaskRecord. The result field
// is stored as a JSON string; if it cannot be decoded the record is still
// returned with a nil Result, and the decode error is reported separately
// so callers can log it.
func (d taskmetaDoc) record() (*api.TaskRecord, error) {
	rec := &api.TaskRecord{
		TaskID:   d.ID,
		Status:   api.Status(d.Status),
		Args:     d.Args,
		DateDone: d.DateDone,
	}
	if len(d.Kwargs) > 0 {
		rec.Kwargs = map[string]any(d.Kwargs)
	}

	result, err := decodeResult(d.Result)
	rec.Result = result
	return rec, err
}

func decodeResult(stored any) (any, error) {
	switch v := stored.(type) {
	case nil:
		return nil, nil
	case string:
		var out any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("result is not valid JSON: %w", err)
		}
		return out, nil
	default:
		// Older backends store the result as a native BSON value.
		return v, nil
	}
}
