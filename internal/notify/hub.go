package notify

import (
	"context"

	"github.com/dukerupert/maycafe/internal/websocket"
)

// Broadcaster is satisfied by *websocket.Hub.
type Broadcaster interface {
	Broadcast(msg websocket.Message) int
}

// HubSink pushes events to live board viewers.
type HubSink struct {
	hub Broadcaster
}

func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Name() string { return "websocket" }

func (s *HubSink) Deliver(_ context.Context, ev Event) error {
	extra := map[string]any{
		"title":   ev.Title,
		"author":  ev.Author,
		"preview": ev.Preview,
	}
	switch ev.Kind {
	case KindReplyCreated:
		extra["message_id"] = ev.MessageID
		s.hub.Broadcast(websocket.NewMessage("reply", "created", ev.ReplyID, extra))
	default:
		s.hub.Broadcast(websocket.NewMessage("message", "created", ev.MessageID, extra))
	}
	return nil
}
