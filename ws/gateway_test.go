package ws

import (
	"fmt"
	"math/rand"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infer_mock "github.com/sensemesh/sensemesh/infer/mock"
	"github.com/sensemesh/sensemesh/wire"
)

const readTimeout = 5 * time.Second

func dialGateway(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeClientMsg(t *testing.T, conn *websocket.Conn, msg *wire.ClientMsg) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func readServerMsg(t *testing.T, conn *websocket.Conn) *wire.ServerMsg {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var msg wire.ServerMsg
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

// readMessage skips frames until a message delivery arrives.
func readMessage(t *testing.T, conn *websocket.Conn) *wire.Delivery {
	t.Helper()
	for i := 0; i < 50; i++ {
		if msg := readServerMsg(t, conn); msg.Message != nil {
			return msg.Message
		}
	}
	t.Fatal("no message delivery received")
	return nil
}

// readPresence skips frames until a presence snapshot with want
// participants arrives.
func readPresence(t *testing.T, conn *websocket.Conn, want int) *wire.Presence {
	t.Helper()
	for i := 0; i < 50; i++ {
		if msg := readServerMsg(t, conn); msg.Presence != nil && len(msg.Presence.Participants) == want {
			return msg.Presence
		}
	}
	t.Fatalf("no presence snapshot with %d participants received", want)
	return nil
}

func connIDByName(t *testing.T, p *wire.Presence, name string) string {
	t.Helper()
	for _, part := range p.Participants {
		if part.DisplayName == name {
			return part.ConnID
		}
	}
	t.Fatalf("participant %q not in snapshot", name)
	return ""
}

func TestGatewayRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ai := infer_mock.NewMockClient(ctrl)
	ai.EXPECT().AnalyzeEmotion(gomock.Any(), gomock.Any()).Return("joy", nil).AnyTimes()

	hub := NewHub(ai, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	alice := dialGateway(t, srv)
	writeClientMsg(t, alice, &wire.ClientMsg{Join: &wire.JoinReq{DisplayName: "Alice", Profile: wire.ProfileNone}})
	readPresence(t, alice, 1)

	bob := dialGateway(t, srv)
	writeClientMsg(t, bob, &wire.ClientMsg{Join: &wire.JoinReq{DisplayName: "Bob", Profile: wire.ProfileBlind}})
	snap := readPresence(t, bob, 2)
	bobID := connIDByName(t, snap, "Bob")
	readPresence(t, alice, 2)

	writeClientMsg(t, alice, &wire.ClientMsg{SendMessage: &wire.SendMessageReq{
		ReceiverID:   bobID,
		Content:      "good morning",
		DeclaredType: wire.TypeText,
	}})

	d := readMessage(t, bob)
	assert.Equal(t, "good morning. The tone is joy.", d.Content)
	assert.Equal(t, wire.TypeText, d.Type)
	assert.Equal(t, true, d.Meta["auto_read"])
	assert.NotEmpty(t, d.SenderID)
}

func TestGatewayDeliversInSendOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// variable inference latency per call must not reorder deliveries.
	ai := infer_mock.NewMockClient(ctrl)
	ai.EXPECT().AnalyzeEmotion(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ interface{}, text string) (string, error) {
			time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
			return "joy", nil
		}).AnyTimes()

	hub := NewHub(ai, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	alice := dialGateway(t, srv)
	writeClientMsg(t, alice, &wire.ClientMsg{Join: &wire.JoinReq{DisplayName: "Alice", Profile: wire.ProfileNone}})
	readPresence(t, alice, 1)

	bob := dialGateway(t, srv)
	writeClientMsg(t, bob, &wire.ClientMsg{Join: &wire.JoinReq{DisplayName: "Bob", Profile: wire.ProfileNone}})
	snap := readPresence(t, bob, 2)
	bobID := connIDByName(t, snap, "Bob")

	const n = 20
	for i := 0; i < n; i++ {
		writeClientMsg(t, alice, &wire.ClientMsg{SendMessage: &wire.SendMessageReq{
			ReceiverID:   bobID,
			Content:      fmt.Sprintf("note %03d", i),
			DeclaredType: wire.TypeText,
		}})
	}

	for i := 0; i < n; i++ {
		d := readMessage(t, bob)
		assert.Equal(t, fmt.Sprintf("note %03d", i), d.Content, "delivery %d out of order", i)
	}
}

func TestGatewayRejectsEventsBeforeJoin(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialGateway(t, srv)
	writeClientMsg(t, conn, &wire.ClientMsg{SendMessage: &wire.SendMessageReq{
		ReceiverID:   "someone",
		Content:      "hi",
		DeclaredType: wire.TypeText,
	}})

	msg := readServerMsg(t, conn)
	require.NotNil(t, msg.Error)
	assert.Equal(t, int32(wire.ErrorCodeInvalidArguments), msg.Error.Code)
}

func TestGatewayRejectsBadGestureBuffer(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialGateway(t, srv)
	writeClientMsg(t, conn, &wire.ClientMsg{Join: &wire.JoinReq{DisplayName: "Alice", Profile: wire.ProfileMute}})
	readPresence(t, conn, 1)

	writeClientMsg(t, conn, &wire.ClientMsg{GestureBuffer: &wire.GestureBufferReq{
		Landmarks: make([]float64, 10),
	}})

	msg := readServerMsg(t, conn)
	require.NotNil(t, msg.Error)
	assert.Equal(t, int32(wire.ErrorCodeInvalidArguments), msg.Error.Code)
}

func TestGatewayDisconnectUpdatesPresence(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	alice := dialGateway(t, srv)
	writeClientMsg(t, alice, &wire.ClientMsg{Join: &wire.JoinReq{DisplayName: "Alice", Profile: wire.ProfileNone}})
	readPresence(t, alice, 1)

	bob := dialGateway(t, srv)
	writeClientMsg(t, bob, &wire.ClientMsg{Join: &wire.JoinReq{DisplayName: "Bob", Profile: wire.ProfileNone}})
	readPresence(t, bob, 2)
	readPresence(t, alice, 2)

	alice.Close()

	snap := readPresence(t, bob, 1)
	assert.Equal(t, "Bob", snap.Participants[0].DisplayName)
}

func TestGatewayDefaultsProfileToNone(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialGateway(t, srv)
	writeClientMsg(t, conn, &wire.ClientMsg{Join: &wire.JoinReq{DisplayName: "Alice"}})

	snap := readPresence(t, conn, 1)
	assert.Equal(t, wire.ProfileNone, snap.Participants[0].Profile)
}
