package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"OracleVerifier/internal/model"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()

	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	value := "2.00"
	bus.Emit(model.Outcome{TaskID: 1, Status: model.OutcomeThresholdMet, Value: &value})

	gotA := <-a
	gotB := <-b
	require.Equal(t, model.TaskID(1), gotA.TaskID)
	require.Equal(t, model.OutcomeThresholdMet, gotB.Status)
	require.Equal(t, "2.00", *gotB.Value)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()

	ch, cancel := bus.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	require.False(t, ok)

	// Emitting with no subscribers must not panic.
	bus.Emit(model.Outcome{TaskID: 2, Status: model.OutcomeVoteStored})
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus()

	ch, cancel := bus.Subscribe()
	defer cancel()

	for i := 0; i < channelBuffer+10; i++ {
		bus.Emit(model.Outcome{TaskID: model.TaskID(i), Status: model.OutcomeVoteStored})
	}

	require.Len(t, ch, channelBuffer)
	require.Equal(t, model.TaskID(0), (<-ch).TaskID)
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	ch, cancel := bus.Subscribe()
	bus.Close()
	cancel()

	_, ok := <-ch
	require.False(t, ok)

	late, _ := bus.Subscribe()
	_, ok = <-late
	require.False(t, ok)
}
