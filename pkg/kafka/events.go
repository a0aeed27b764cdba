package kafka

import (
	"fmt"
	"strconv"
)

type Action string

const (
	ActionUpsert Action = "upsert"
	ActionDelete Action = "delete"
)

// RecordEvent is one change to the record set. Fields is ignored for
// deletes.
type RecordEvent struct {
	Action Action            `json:"action"`
	ID     int64             `json:"id"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (e RecordEvent) Validate() error {
	switch e.Action {
	case ActionUpsert, ActionDelete:
		return nil
	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}
}

// Key is the partition key: the decimal record id.
func (e RecordEvent) Key() []byte {
	return strconv.AppendInt(nil, e.ID, 10)
}
