package ros

import (
	"encoding/json"
)

// rosbridge v2 operations.
// See https://github.com/RobotWebTools/rosbridge_suite/blob/ros1/ROSBRIDGE_PROTOCOL.md.
const (
	OpAdvertise   = "advertise"
	OpUnadvertise = "unadvertise"
	OpPublish     = "publish"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpStatus      = "status"
)

// Op is a single rosbridge protocol message. Only the fields relevant to the
// operation are set. For "status" messages Msg holds a JSON string.
type Op struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic,omitempty"`
	Type  string `json:"type,omitempty"`

	QueueSize   int `json:"queue_size,omitempty"`
	QueueLength int `json:"queue_length,omitempty"`

	Level string          `json:"level,omitempty"`
	Msg   json.RawMessage `json:"msg,omitempty"`
}

// StatusText returns the text of a status message.
func (o *Op) StatusText() string {
	var s string
	if err := json.Unmarshal(o.Msg, &s); err != nil {
		return string(o.Msg)
	}
	return s
}
