package ingest

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/rtcpulse/internal/app/demux"
	"github.com/dkeye/rtcpulse/internal/domain"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(opts)
	engine := gin.New()
	engine.GET("/", func(c *gin.Context) { h.HandleConnection(context.Background(), c) })
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestIdleClientTimesOutDespitePongs(t *testing.T) {
	flushed := make(chan demux.RecordInfo, 1)
	_, url := newTestServer(t, Options{
		DumpFolder:  t.TempDir(),
		IdleTimeout: 300 * time.Millisecond,
		PingPeriod:  100 * time.Millisecond,
		OnRecordClosed: func(info demux.RecordInfo, _ domain.ConnectionInfo) {
			flushed <- info
		},
	})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"stats-entry","statsSessionId":"s1","data":["getstats","PC_0",{},1000]}`)))

	// Keep reading so the dialer answers the server's pings, but send
	// no further data frames. Pong traffic alone must not keep the
	// connection alive: the idle timeout has to flush the open record.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case info := <-flushed:
		assert.Equal(t, domain.SessionID("s1"), info.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("idle timeout never flushed the open record")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection still open after idle timeout")
	}
}
