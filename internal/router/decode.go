package router

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rickgao/rtu-client/internal/model"
	"github.com/rickgao/rtu-client/internal/topic"
)

// Decode turns one raw frame into a tagged Message.
func Decode(data []byte, receivedAt time.Time) (model.Message, error) {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return model.Message{}, ErrMissingType
	}

	key := topic.Parse(env.Type)

	msg := model.Message{
		Kind:             model.KindApplication,
		Topic:            env.Type,
		Key:              key,
		Data:             env.Data,
		ExcludedDeviceID: env.ExcludedDeviceID,
		Error:            env.Error,
		ReceivedAt:       receivedAt,
	}

	switch {
	case topic.IsHeartbeat(key.Service):
		msg.Kind = model.KindHeartbeat
	case topic.IsSchedulerTick(key.Service):
		msg.Kind = model.KindSchedulerTick
	case env.Type == topic.Error || env.Error != nil:
		msg.Kind = model.KindError
	}

	return msg, nil
}

// isSecurityError reports whether msg carries a session/token error.
func isSecurityError(msg model.Message) bool {
	return msg.Error != nil && topic.IsSecurityException(msg.Error.Type)
}
