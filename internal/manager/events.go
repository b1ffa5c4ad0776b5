package manager

import "github.com/rs/zerolog"

// Event represents a manager lifecycle event.
// Minimal and stable: name + model key and optional fields via key/values.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// logPublisher is the default; it writes events to the manager logger.
type logPublisher struct{ log zerolog.Logger }

func (p logPublisher) Publish(e Event) {
	ev := p.log.Debug()
	switch e.Name {
	case "ensure_error", "ensure_budget_fail", "unload_timeout", "close_error", "spawn_exit", "spawn_timeout":
		ev = p.log.Warn()
	case "ensure_ready", "evict", "unload_done", "spawn_ready", "spawn_stop":
		ev = p.log.Info()
	}
	ev.Str("event", e.Name).Str("model", e.ModelID).Fields(e.Fields).Msg("manager")
}

// emit publishes an event with the given key/value fields.
func (m *Manager) emit(name string, key Key, kv ...any) {
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	m.publisher.Publish(Event{Name: name, ModelID: key.String(), Fields: fields})
}

// PublishEvent forwards an event raised outside the manager, such as a
// runtime subprocess starting or exiting, to the configured publisher.
func (m *Manager) PublishEvent(name, modelID string, fields map[string]any) {
	m.publisher.Publish(Event{Name: name, ModelID: modelID, Fields: fields})
}
