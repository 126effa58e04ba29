package imremote

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startRemote(t *testing.T) *Remote {
	t.Helper()

	r, err := Init(context.Background(), "127.0.0.1", 0, newTestRenderer(),
		RemoteLoggerOption(&mockLogger{}),
		WithSessionOptions(SendIntervalOption(0)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func dialRemote(t *testing.T, r *Remote) *websocket.Conn {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+r.Addr().String()+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	return ws
}

func readPacket(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()

	frameType, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, frameType)
	return unframe(t, data)
}

func handshakeClient(t *testing.T, r *Remote, ws *websocket.Conn) {
	t.Helper()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(InitToken)))

	frameType, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, frameType)
	require.Equal(t, InitToken, string(data))

	atlas := readPacket(t, ws)
	require.Equal(t, byte(PacketFontAtlas), atlas[0])
	require.True(t, r.Session().Active())
}

func TestRemote_EndToEnd(t *testing.T) {
	r := startRemote(t)
	ws := dialRemote(t, r)
	handshakeClient(t, r, ws)

	var d Decoder
	for i := 0; i < 3; i++ {
		r.Update()
		require.NoError(t, r.SubmitFrame(testLists()))

		raw, err := d.Decode(readPacket(t, ws))
		require.NoError(t, err)

		var e Encoder
		BuildFrame(&e, testLists(), true)
		require.Equal(t, e.Bytes()[1:], raw[1:])
	}

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("ImMouseMove=40,50")))
	require.Eventually(t, func() bool {
		in, ok := r.ReadInput()
		return ok && in.MousePos == [2]float32{40, 50}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRemote_SecondClientRejected(t *testing.T) {
	r := startRemote(t)
	first := dialRemote(t, r)
	handshakeClient(t, r, first)

	second := dialRemote(t, r)
	_, _, err := second.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)

	// The first client is unaffected.
	r.Update()
	require.NoError(t, r.SubmitFrame(testLists()))
	require.Equal(t, byte(PacketFrameKey), readPacket(t, first)[0])
}

func TestRemote_Reconnect(t *testing.T) {
	r := startRemote(t)
	first := dialRemote(t, r)
	handshakeClient(t, r, first)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		return !r.Session().Active()
	}, 5*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, r.SubmitFrame(testLists()), ErrNotActive)

	// The slot frees up once the first connection is gone.
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.client == nil
	}, 5*time.Second, 10*time.Millisecond)
	second := dialRemote(t, r)
	handshakeClient(t, r, second)

	r.Update()
	require.NoError(t, r.SubmitFrame(testLists()))
	require.Equal(t, byte(PacketFrameKey), readPacket(t, second)[0])
}

func TestRemote_Close(t *testing.T) {
	r, err := Init(context.Background(), "127.0.0.1", 0, newTestRenderer(), RemoteLoggerOption(&mockLogger{}))
	require.NoError(t, err)

	ws := dialRemote(t, r)
	handshakeClient(t, r, ws)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, _, err = ws.ReadMessage()
	require.Error(t, err)
}

func TestInit_Errors(t *testing.T) {
	_, err := Init(context.Background(), "127.0.0.1", 0, nil)
	require.ErrorIs(t, err, ErrInvalidRenderer)

	r := startRemote(t)
	_, err = Init(context.Background(), "127.0.0.1", r.Addr().(*net.TCPAddr).Port, newTestRenderer())
	require.Error(t, err)
}
