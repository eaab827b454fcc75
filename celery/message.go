package celery

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// pidboxChannel is the fanout channel kombu uses for worker remote control
// over a Redis transport.
const pidboxChannel = "/0.celery.pidbox"

// message is a Celery protocol v2 task message as carried by the kombu
// Redis transport: a JSON envelope whose body is the base64 of
// [args, kwargs, embed].
type message struct {
	Body            string         `json:"body"`
	ContentEncoding string         `json:"content-encoding"`
	ContentType     string         `json:"content-type"`
	Headers         messageHeaders `json:"headers"`
	Properties      properties     `json:"properties"`
}

type messageHeaders struct {
	Lang       string  `json:"lang"`
	Task       string  `json:"task"`
	ID         string  `json:"id"`
	RootID     string  `json:"root_id"`
	ParentID   *string `json:"parent_id"`
	Group      *string `json:"group"`
	ArgsRepr   string  `json:"argsrepr"`
	KwargsRepr string  `json:"kwargsrepr"`
	Retries    int     `json:"retries"`
	ETA        *string `json:"eta"`
	Expires    *string `json:"expires"`
}

type properties struct {
	CorrelationID string       `json:"correlation_id"`
	ReplyTo       string       `json:"reply_to"`
	DeliveryMode  int          `json:"delivery_mode"`
	DeliveryTag   string       `json:"delivery_tag"`
	DeliveryInfo  deliveryInfo `json:"delivery_info"`
	BodyEncoding  string       `json:"body_encoding"`
	Priority      int          `json:"priority"`
}

type deliveryInfo struct {
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
}

// embed is the third element of a v2 body; rhythm uses no canvas
// primitives, so every field stays null.
type embed struct {
	Callbacks *string `json:"callbacks"`
	Errbacks  *string `json:"errbacks"`
	Chain     *string `json:"chain"`
	Chord     *string `json:"chord"`
}

func newMessage(task, queue string, args []any, kwargs map[string]any) (*message, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	body, err := json.Marshal([]any{args, kwargs, embed{}})
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	return &message{
		Body:            base64.StdEncoding.EncodeToString(body),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: messageHeaders{
			Lang:       "py",
			Task:       task,
			ID:         id,
			RootID:     id,
			ArgsRepr:   fmt.Sprintf("%v", args),
			KwargsRepr: fmt.Sprintf("%v", kwargs),
		},
		Properties: properties{
			CorrelationID: id,
			DeliveryMode:  2,
			DeliveryTag:   uuid.NewString(),
			DeliveryInfo: deliveryInfo{
				Exchange:   "",
				RoutingKey: queue,
			},
			BodyEncoding: "base64",
		},
	}, nil
}

func (m *message) taskID() string {
	return m.Headers.ID
}

func (m *message) encode() ([]byte, error) {
	return json.Marshal(m)
}

// decodeBody unpacks the base64 body back into args, kwargs and the embed
// map. Used by tests and by anyone consuming rhythm-dispatched messages
// from Go.
func (m *message) decodeBody() (args []any, kwargs map[string]any, err error) {
	raw, err := base64.StdEncoding.DecodeString(m.Body)
	if err != nil {
		return nil, nil, err
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, nil, err
	}
	if len(parts) < 2 {
		return nil, nil, fmt.Errorf("task body has %d elements, want 3", len(parts))
	}
	if err := json.Unmarshal(parts[0], &args); err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(parts[1], &kwargs); err != nil {
		return nil, nil, err
	}
	return args, kwargs, nil
}

// controlMessage is a worker remote-control command broadcast over the
// pidbox channel.
type controlMessage struct {
	Method      string         `json:"method"`
	Arguments   map[string]any `json:"arguments"`
	Destination *string        `json:"destination"`
	Pattern     *string        `json:"pattern"`
	Matcher     *string        `json:"matcher"`
}

func newRevokeMessage(taskID string, terminate bool) *controlMessage {
	return &controlMessage{
		Method: "revoke",
		Arguments: map[string]any{
			"task_id":   taskID,
			"terminate": terminate,
			"signal":    "SIGTERM",
		},
	}
}

func (m *controlMessage) encode() ([]byte, error) {
	return json.Marshal(m)
}
