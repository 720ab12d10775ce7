package mqtt311

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newWSServer serves one websocket connection with handle and returns its ws:// URL.
func newWSServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{Subprotocols: []string{WebSocketSubprotocol}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/mqtt"
}

func wsEcho(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

func TestWSDialerRoundTrip(t *testing.T) {
	url := newWSServer(t, wsEcho)

	conn, err := NewWSDialer().Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	exchangePacket(t, conn)

	ws, ok := conn.(*WSConn)
	require.True(t, ok)
	assert.Equal(t, WebSocketSubprotocol, ws.conn.Subprotocol())
	assert.NotNil(t, ws.LocalAddr())
	assert.NotNil(t, ws.RemoteAddr())
	assert.NoError(t, ws.SetDeadline(time.Now().Add(time.Second)))
	assert.NoError(t, ws.SetWriteDeadline(time.Time{}))
}

func TestWSConnPacketsAcrossFrames(t *testing.T) {
	var encoded bytes.Buffer
	_, err := WritePacket(&encoded, &PublishPacket{Topic: "a/b", Payload: []byte("split")}, 0)
	require.NoError(t, err)
	_, err = WritePacket(&encoded, &PingrespPacket{}, 0)
	require.NoError(t, err)
	_, err = WritePacket(&encoded, &PubackPacket{PacketID: 9}, 0)
	require.NoError(t, err)
	data := encoded.Bytes()

	url := newWSServer(t, func(conn *websocket.Conn) {
		// The first packet spans two frames; the second frame also carries
		// the start of the PINGRESP, the third the rest.
		_ = conn.WriteMessage(websocket.BinaryMessage, data[:4])
		_ = conn.WriteMessage(websocket.BinaryMessage, data[4:len(data)-5])
		_ = conn.WriteMessage(websocket.BinaryMessage, data[len(data)-5:])
		_, _, _ = conn.ReadMessage()
	})

	conn, err := NewWSDialer().Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	p, _, err := ReadPacket(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, &PublishPacket{Topic: "a/b", Payload: []byte("split")}, p)

	p, _, err = ReadPacket(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, PacketPINGRESP, p.Type())

	p, _, err = ReadPacket(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, &PubackPacket{PacketID: 9}, p)
}

func TestWSConnRejectsTextFrames(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		_, _, _ = conn.ReadMessage()
	})

	conn, err := NewWSDialer().Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Read(make([]byte, 16))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestWSDialerBadURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewWSDialer().Dial(ctx, "ws://127.0.0.1:1/mqtt")
	assert.Error(t, err)
}

func TestNewWSDialerWith(t *testing.T) {
	d := newWSDialerWith(nil, nil)
	assert.Nil(t, d.Dialer.NetDialContext)
	assert.Equal(t, []string{WebSocketSubprotocol}, d.Dialer.Subprotocols)

	p, err := NewProxyDialer("http://127.0.0.1:3128", "", "")
	require.NoError(t, err)
	d = newWSDialerWith(nil, p)
	assert.NotNil(t, d.Dialer.NetDialContext)
}
