package api

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/meeple/internal/bus"
	"github.com/matheus3301/meeple/internal/session"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Watch streams bus events until the client goes away.
func (c *Control) Watch(req *WatchRequest, stream grpc.ServerStream) error {
	ch, unsub := c.Bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if !matchKind(req.Kinds, evt.Kind) {
				continue
			}
			payload, err := watchPayload(evt)
			if err != nil {
				c.logger.Debug("unencodable event payload", zap.String("kind", evt.Kind), zap.Error(err))
			}
			if err := stream.SendMsg(&WatchEvent{
				ID:               uuid.New().String(),
				Profile:          c.Profile,
				Kind:             evt.Kind,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Payload:          payload,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func matchKind(prefixes []string, kind string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(kind, p) {
			return true
		}
	}
	return false
}

// watchPayload encodes an event payload. Credentials never leave the daemon.
func watchPayload(evt bus.Event) (json.RawMessage, error) {
	v := evt.Payload
	if change, ok := v.(session.IdentityChange); ok {
		v = change.Identity
	}
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
