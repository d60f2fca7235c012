// Package ingest terminates client websocket connections and feeds
// their event streams into per-connection demultiplexers.
package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpulse/internal/app/demux"
	"github.com/dkeye/rtcpulse/internal/domain"
	"github.com/dkeye/rtcpulse/internal/metrics"
	"github.com/dkeye/rtcpulse/internal/stats"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// greeting tells reconnect-capable clients the server is ready to
// receive from sequence zero.
type greeting struct {
	Type string       `json:"type"`
	Body greetingBody `json:"body"`
}

type greetingBody struct {
	Value int    `json:"value"`
	State string `json:"state"`
}

// Options configures the websocket ingest endpoint.
type Options struct {
	DumpFolder  string
	ReadLimit   int64
	IdleTimeout time.Duration
	PingPeriod  time.Duration
	// OnRecordClosed receives every flushed session record together
	// with the connection info captured at accept time.
	OnRecordClosed func(demux.RecordInfo, domain.ConnectionInfo)
}

type Handler struct {
	opts Options
}

func NewHandler(opts Options) *Handler {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.IdleTimeout {
		opts.PingPeriod = opts.IdleTimeout * 5 / 6
	}
	return &Handler{opts: opts}
}

// connectionInfo classifies the client from the upgrade request before
// any payload arrives, so records are routable even if the stream dies
// early.
func connectionInfo(c *gin.Context, clientProtocol string) domain.ConnectionInfo {
	userAgent := c.Request.UserAgent()
	return domain.ConnectionInfo{
		Path:           c.Request.URL.Path,
		Origin:         c.GetHeader("Origin"),
		URL:            c.Request.URL.String(),
		UserAgent:      userAgent,
		ClientProtocol: clientProtocol,
		StatsFormat:    stats.DetectFormat(userAgent, clientProtocol),
		ClientType:     domain.ClientTypeFromProtocol(clientProtocol),
	}
}

// HandleConnection upgrades the request and runs the read loop until
// the client disconnects, the stream errors or the idle timeout fires.
// All outcomes funnel through CloseAll: no open record is ever dropped.
func (h *Handler) HandleConnection(ctx context.Context, c *gin.Context) {
	var clientProtocol string
	var respHeader http.Header
	if protocols := websocket.Subprotocols(c.Request); len(protocols) > 0 {
		clientProtocol = protocols[0]
		respHeader = http.Header{"Sec-WebSocket-Protocol": {clientProtocol}}
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		log.Error().Str("module", "ingest").Err(err).Msg("ws upgrade")
		return
	}

	connID := uuid.NewString()
	connInfo := connectionInfo(c, clientProtocol)
	metrics.ConnectedClients.Inc()
	metrics.ConnectionsTotal.WithLabelValues(string(connInfo.ClientType)).Inc()
	log.Info().Str("module", "ingest").
		Str("conn", connID).
		Str("clientType", string(connInfo.ClientType)).
		Str("statsFormat", string(connInfo.StatsFormat)).
		Str("origin", connInfo.Origin).
		Msg("client connected")

	d := demux.New(demux.Options{
		Folder:   h.opts.DumpFolder,
		ConnInfo: connInfo,
		OnRecordClosed: func(info demux.RecordInfo) {
			if h.opts.OnRecordClosed != nil {
				h.opts.OnRecordClosed(info, connInfo)
			}
		},
	})

	defer func() {
		metrics.ConnectedClients.Dec()
		_ = ws.Close()
	}()

	if err := ws.WriteJSON(greeting{Type: "sn", Body: greetingBody{Value: 0, State: "initial"}}); err != nil {
		log.Error().Str("module", "ingest").Err(err).Msg("greeting write failed")
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	go h.pingLoop(ctx, ws, stop)

	h.readLoop(ctx, ws, d, connID)
}

func (h *Handler) pingLoop(ctx context.Context, ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(h.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, d *demux.Demux, connID string) {
	if h.opts.ReadLimit > 0 {
		ws.SetReadLimit(h.opts.ReadLimit)
	}
	// Only data frames extend the deadline. Pong answers to our own
	// pings are not client activity: a silent client must still hit the
	// idle timeout so its records get flushed.
	deadline := func() { _ = ws.SetReadDeadline(time.Now().Add(h.opts.IdleTimeout)) }
	deadline()

	for {
		select {
		case <-ctx.Done():
			d.CloseAll("server shutdown")
			return
		default:
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			// Clean close and idle timeout both end every session on
			// this stream the same way.
			reason := "disconnect"
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Str("module", "ingest").Err(err).Str("conn", connID).Msg("read loop terminated")
				reason = "read error"
			}
			d.CloseAll(reason)
			return
		}
		deadline()

		var ev domain.RawEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Error().Str("module", "ingest").Err(err).Msg("malformed event frame")
			metrics.SessionErrors.Inc()
			d.CloseAll("protocol violation")
			return
		}
		if err := d.HandleEvent(&ev); err != nil {
			log.Error().Str("module", "ingest").Err(err).Str("type", ev.Type).Msg("event handling failed")
			metrics.SessionErrors.Inc()
			d.CloseAll("stream error")
			return
		}
	}
}
