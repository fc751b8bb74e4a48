package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensemesh/sensemesh/infer"
	infer_mock "github.com/sensemesh/sensemesh/infer/mock"
	"github.com/sensemesh/sensemesh/journal"
	"github.com/sensemesh/sensemesh/wire"
)

func unavailableErr() error {
	return &infer.Error{Kind: infer.KindUnavailable, Endpoint: "detect_hazard", Err: errors.New("timeout")}
}

// testSink implements relay.Sink for hub tests without websockets.
type testSink struct {
	mu   sync.Mutex
	msgs []*wire.ServerMsg
}

func (s *testSink) Send(msg *wire.ServerMsg) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
}

func (s *testSink) all() []*wire.ServerMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wire.ServerMsg, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func joinMesh(hub *Hub, connID, name string, profile wire.Profile) *testSink {
	sink := &testSink{}
	hub.registry.Join(wire.Participant{ConnID: connID, DisplayName: name, Profile: profile})
	hub.disp.Attach(connID, sink)
	return sink
}

func landmarks() []float64 {
	return make([]float64, wire.GestureBufferLen)
}

func TestGestureUnknownIsSuppressed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ai := infer_mock.NewMockClient(ctrl)
	ai.EXPECT().PredictSign(gomock.Any(), gomock.Any()).Return("Unknown", nil)

	hub := NewHub(ai, nil)
	alice := joinMesh(hub, "a", "Alice", wire.ProfileMute)
	bob := joinMesh(hub, "b", "Bob", wire.ProfileNone)

	hub.recognizeGesture("a", "Alice", landmarks())

	assert.Empty(t, alice.all())
	assert.Empty(t, bob.all())
}

func TestGestureLowConfidenceSentinelIsSuppressed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ai := infer_mock.NewMockClient(ctrl)
	ai.EXPECT().PredictSign(gomock.Any(), gomock.Any()).Return("...", nil)

	hub := NewHub(ai, nil)
	alice := joinMesh(hub, "a", "Alice", wire.ProfileMute)

	hub.recognizeGesture("a", "Alice", landmarks())

	assert.Empty(t, alice.all())
}

func TestGestureEcho(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ai := infer_mock.NewMockClient(ctrl)
	ai.EXPECT().PredictSign(gomock.Any(), gomock.Any()).Return("hello", nil)

	hub := NewHub(ai, nil)
	alice := joinMesh(hub, "a", "Alice", wire.ProfileMute)
	bob := joinMesh(hub, "b", "Bob", wire.ProfileNone)
	carol := joinMesh(hub, "c", "Carol", wire.ProfileBlind)

	hub.recognizeGesture("a", "Alice", landmarks())

	// first-person confirmation to the signer.
	self := alice.all()
	require.Len(t, self, 1)
	assert.Equal(t, "hello", self[0].Message.Content)
	assert.Equal(t, true, self[0].Message.Meta["self"])

	// third-person annotation to everyone else.
	for _, sink := range []*testSink{bob, carol} {
		got := sink.all()
		require.Len(t, got, 1)
		assert.Equal(t, "Alice signs: hello", got[0].Message.Content)
		assert.Equal(t, true, got[0].Message.Meta["gesture"])
		assert.Nil(t, got[0].Message.Meta["self"])
	}
}

func TestHazardLowUrgencyIsDiscarded(t *testing.T) {
	hub := NewHub(nil, nil)
	alice := joinMesh(hub, "a", "Alice", wire.ProfileNone)

	hub.HazardAlert("hum", wire.UrgencyLow, "a")

	assert.Empty(t, alice.all())
}

func TestHazardCriticalBroadcastsToAllIncludingProber(t *testing.T) {
	hub := NewHub(nil, nil)
	alice := joinMesh(hub, "a", "Alice", wire.ProfileNone)
	bob := joinMesh(hub, "b", "Bob", wire.ProfileDeaf)

	hub.HazardAlert("siren", wire.UrgencyCritical, "a")

	for _, sink := range []*testSink{alice, bob} {
		got := sink.all()
		require.Len(t, got, 1)
		require.NotNil(t, got[0].Hazard)
		assert.Equal(t, "siren", got[0].Hazard.Event)
		assert.Equal(t, wire.UrgencyCritical, got[0].Hazard.Urgency)
	}
}

func TestHazardCriticalIsJournaled(t *testing.T) {
	jnl, err := journal.Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	defer jnl.Close()

	hub := NewHub(nil, jnl)
	joinMesh(hub, "a", "Alice", wire.ProfileNone)

	hub.HazardAlert("siren", wire.UrgencyCritical, "a")
	hub.HazardAlert("hum", wire.UrgencyLow, "a") // not journaled

	got, err := jnl.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "siren", got[0].Event)
	assert.Equal(t, "a", got[0].ProbeConn)
}

func TestProbeHazardFailureIsSuppressed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ai := infer_mock.NewMockClient(ctrl)
	ai.EXPECT().DetectHazard(gomock.Any(), "AUDIO64").
		Return(infer.HazardResult{}, unavailableErr())

	hub := NewHub(ai, nil)
	alice := joinMesh(hub, "a", "Alice", wire.ProfileNone)

	hub.probeHazard("a", "AUDIO64")

	assert.Empty(t, alice.all())
}

// serverSideConn returns the server half of a live websocket connection.
func serverSideConn(t *testing.T) *websocket.Conn {
	t.Helper()
	connC := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connC <- c
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return <-connC
}

func TestSlowConsumerDropsBroadcastsButClosesOnDirectedDelivery(t *testing.T) {
	hub := NewHub(nil, nil)

	h := &Handler{
		hub:      hub,
		conn:     serverSideConn(t),
		connID:   "slow",
		dataChan: make(chan *SessionData, dataChanSize),
	}
	h.setJoined("Slow")
	hub.hstore.add(h)
	hub.registry.Join(wire.Participant{ConnID: "slow", DisplayName: "Slow", Profile: wire.ProfileNone})
	hub.disp.Attach("slow", h)

	// no sendLoop is draining; fill the buffer.
	for i := 0; i < dataChanSize; i++ {
		h.Send(&wire.ServerMsg{Presence: &wire.Presence{}})
	}

	// an overflowing broadcast frame is dropped, the session stays open.
	h.Send(&wire.ServerMsg{Presence: &wire.Presence{}})
	h.Lock()
	closing := h.closing
	h.Unlock()
	assert.False(t, closing)
	require.NotNil(t, hub.hstore.get("slow"))

	// an overflowing directed delivery closes the session instead.
	h.Send(&wire.ServerMsg{Message: &wire.Delivery{Content: "hi"}})
	assert.Eventually(t, func() bool {
		return hub.hstore.get("slow") == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.registry.Len())
}

func TestUnknownReceiverReleasesSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ai := infer_mock.NewMockClient(ctrl)
	ai.EXPECT().AnalyzeEmotion(gomock.Any(), gomock.Any()).Return("joy", nil).AnyTimes()

	hub := NewHub(ai, nil)
	joinMesh(hub, "a", "Alice", wire.ProfileNone)
	bob := joinMesh(hub, "b", "Bob", wire.ProfileNone)

	// first message targets a receiver that never existed; its sequence
	// slot must not stall the following message to bob.
	gone := &wire.Message{SenderID: "a", ReceiverID: "ghost", Content: "hello there", DeclaredType: wire.TypeText}
	gone.Seq = hub.queues.Enqueue(gone.SenderID, gone.ReceiverID)
	hub.transformAndRelay(gone)

	msg := &wire.Message{SenderID: "a", ReceiverID: "b", Content: "hello there", DeclaredType: wire.TypeText}
	msg.Seq = hub.queues.Enqueue(msg.SenderID, msg.ReceiverID)
	hub.transformAndRelay(msg)

	got := bob.all()
	require.Len(t, got, 1)
	assert.Equal(t, "hello there", got[0].Message.Content)
}
