package notifications

import (
	"context"
	"strings"
)

// Level selects how a notification is presented.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a user-visible message. Message is always a public,
// human-readable string; raw errors never travel through a sink.
type Notification struct {
	Level   Level             `json:"type"`
	Message string            `json:"message"`
	UserID  string            `json:"user_id,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

func Success(message string) Notification {
	return Notification{Level: LevelSuccess, Message: message}
}

func Error(message string) Notification {
	return Notification{Level: LevelError, Message: message}
}

func Info(message string) Notification {
	return Notification{Level: LevelInfo, Message: message}
}

// ForUser addresses the notification to a user so push sinks can route it.
func (n Notification) ForUser(userID string) Notification {
	n.UserID = strings.TrimSpace(userID)
	return n
}

// With attaches one data attribute, e.g. the order id of a confirmation.
func (n Notification) With(key, value string) Notification {
	data := make(map[string]string, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	data[key] = value
	n.Data = data
	return n
}

// Sink receives notifications. Implementations must not block the caller on
// slow transports for longer than the caller's context allows.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification)

func (f SinkFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Discard drops every notification.
var Discard Sink = SinkFunc(func(context.Context, Notification) {})

// Fanout delivers each notification to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, n Notification) {
	for _, sink := range f {
		if sink != nil {
			sink.Notify(ctx, n)
		}
	}
}
