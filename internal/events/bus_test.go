package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeFiltersTypes(t *testing.T) {
	bus := NewBus()

	var settled, all []EventType
	unsubSettled := bus.Subscribe(func(e *Event) { settled = append(settled, e.Type) }, TradeSettled)
	unsubAll := bus.Subscribe(func(e *Event) { all = append(all, e.Type) })
	defer unsubAll()

	bus.Publish(&Event{Type: TradeSettled})
	bus.Publish(&Event{Type: TradeRejected})

	assert.Equal(t, []EventType{TradeSettled}, settled)
	assert.Equal(t, []EventType{TradeSettled, TradeRejected}, all)

	unsubSettled()
	unsubSettled()
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Publish(&Event{Type: TradeSettled})
	assert.Len(t, settled, 1)
	assert.Len(t, all, 3)
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	count := 0
	bus.Subscribe(func(*Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(&Event{Type: TradeSettled})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, count)
}

func TestManager_Emit(t *testing.T) {
	bus := NewBus()
	m := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(func(e *Event) { got = e })

	m.Emit("acc-1", "settlement", &TradeSettledData{TradeID: "t1", Symbol: "AAPL"})
	require.NotNil(t, got)
	assert.Equal(t, TradeSettled, got.Type)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.Equal(t, "settlement", got.Module)
	assert.False(t, got.Timestamp.IsZero())

	m.EmitError("backup", errors.New("boom"), nil)
	assert.Equal(t, ErrorOccurred, got.Type)
	assert.Equal(t, "boom", got.Data.(*ErrorEventData).Error)
}

func TestManager_NilBus(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	assert.NotPanics(t, func() {
		m.Emit("acc-1", "settlement", &TradeRejectedData{Reason: "insufficient funds"})
	})
	assert.Nil(t, m.Bus())
}
