package pushhub

import (
	"encoding/json"

	"github.com/lineform/scraper/internal/domain"
)

// NewMessage marshals payload and wraps it as a PushMessage for topic.
// Marshal errors are swallowed into an empty payload: publishing a
// malformed message is a logging concern for the caller, not a reason to
// propagate an error through the hot path of the coordinator.
func NewMessage(topic domain.Topic, payload any) domain.PushMessage {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage(`{}`)
	}
	return domain.PushMessage{Topic: topic, Payload: raw}
}
