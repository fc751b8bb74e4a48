package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensemesh/sensemesh/wire"
)

func TestDeliverToOne(t *testing.T) {
	sink := &recordSink{}
	disp := NewDispatcher()
	disp.Attach("a", sink)

	ok := disp.DeliverToOne("a", delivery("hi"))
	assert.True(t, ok)
	require.Len(t, sink.all(), 1)
}

func TestDeliverToGoneReceiverIsSilentDrop(t *testing.T) {
	disp := NewDispatcher()
	sink := &recordSink{}
	disp.Attach("a", sink)
	disp.Detach("a")

	ok := disp.DeliverToOne("a", delivery("hi"))
	assert.False(t, ok)
	assert.Empty(t, sink.all())
}

func TestBroadcastAll(t *testing.T) {
	disp := NewDispatcher()
	sinks := map[string]*recordSink{"a": {}, "b": {}, "c": {}}
	for id, s := range sinks {
		disp.Attach(id, s)
	}

	disp.BroadcastAll(&wire.ServerMsg{Hazard: &wire.Hazard{Event: "siren", Urgency: wire.UrgencyCritical}})

	for id, s := range sinks {
		assert.Len(t, s.all(), 1, "sink %s", id)
	}
}

func TestBroadcastExcept(t *testing.T) {
	disp := NewDispatcher()
	sinks := map[string]*recordSink{"a": {}, "b": {}, "c": {}}
	for id, s := range sinks {
		disp.Attach(id, s)
	}

	disp.BroadcastExcept("a", delivery("x"))

	assert.Empty(t, sinks["a"].all())
	assert.Len(t, sinks["b"].all(), 1)
	assert.Len(t, sinks["c"].all(), 1)
}

func TestDetachUnknown(t *testing.T) {
	disp := NewDispatcher()
	assert.False(t, disp.Detach("nope"))
}
