package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
	now func() time.Time
}

// NewManager creates a new event manager. bus may be nil, in which case
// events are only logged.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
		now: time.Now,
	}
}

// Emit logs an event and publishes it on the bus
func (m *Manager) Emit(accountID, module string, data EventData) {
	event := &Event{
		Type:      data.EventType(),
		AccountID: accountID,
		Module:    module,
		Timestamp: m.now().UTC(),
		Data:      data,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Debug().
		Str("event_type", string(event.Type)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	if m.bus != nil {
		m.bus.Publish(event)
	}
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]any) {
	m.Emit("", module, &ErrorEventData{Error: err.Error(), Context: context})
}

// Bus returns the underlying bus, or nil.
func (m *Manager) Bus() *Bus {
	return m.bus
}
