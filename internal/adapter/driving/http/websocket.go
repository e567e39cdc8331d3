package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Wyydra/yacall/internal/core/domain"
)

const (
	authFailureMessage = "Not authenticated"
	cleanupTimeout     = 5 * time.Second
)

// WSClient is one websocket connection. Writes go through a buffered channel
// drained by a single writer goroutine, as gorilla allows one writer at a time.
type WSClient struct {
	handle domain.ConnectionHandle
	user   domain.UserID
	conn   *websocket.Conn

	send         chan domain.Event
	done         chan struct{}
	closeOnce    sync.Once
	closeReason  string
	writeTimeout time.Duration
	pingInterval time.Duration
	l            zerolog.Logger
}

func newWSClient(conn *websocket.Conn, user domain.UserID, opts Options) *WSClient {
	handle := domain.NewConnectionHandle()
	return &WSClient{
		handle:       handle,
		user:         user,
		conn:         conn,
		send:         make(chan domain.Event, opts.SendBuffer),
		done:         make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PongTimeout * 9 / 10,
		l:            log.With().Str("user_id", user.String()).Str("handle", handle.String()).Logger(),
	}
}

func (c *WSClient) Handle() domain.ConnectionHandle {
	return c.handle
}

// Send queues evt. It never blocks: a closed client reports
// domain.ErrHandleClosed and a full buffer domain.ErrSendBufferFull.
func (c *WSClient) Send(evt domain.Event) error {
	select {
	case <-c.done:
		return domain.ErrHandleClosed
	default:
	}
	select {
	case c.send <- evt:
		return nil
	case <-c.done:
		return domain.ErrHandleClosed
	default:
		c.l.Warn().Str("event", string(evt.Type)).Msg("Send buffer full, dropping event")
		return domain.ErrSendBufferFull
	}
}

// Close asks the writer to flush queued events and close the socket.
func (c *WSClient) Close(reason string) error {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
	return nil
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt := <-c.send:
			if err := c.write(evt); err != nil {
				c.l.Debug().Err(err).Msg("Write failed")
				c.Close("write failed")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.Close("ping failed")
				return
			}
		case <-c.done:
			c.flush()
			deadline := time.Now().Add(c.writeTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}

func (c *WSClient) flush() {
	for {
		select {
		case evt := <-c.send:
			if err := c.write(evt); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *WSClient) write(evt domain.Event) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(evt)
}

type incomingDTO struct {
	Type       string          `json:"type"`
	To         string          `json:"to"`
	Offer      json.RawMessage `json:"offer"`
	Answer     json.RawMessage `json:"answer"`
	SuccessURL string          `json:"successUrl"`
	Message    string          `json:"message"`
}

func (d incomingDTO) signal() domain.Signal {
	return domain.Signal{
		Type:       domain.EventType(d.Type),
		To:         domain.UserID(d.To),
		Offer:      d.Offer,
		Answer:     d.Answer,
		SuccessURL: d.SuccessURL,
		Message:    d.Message,
	}
}

// HTTP handler
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claim := domain.IdentityClaim{
		Token:  r.URL.Query().Get("token"),
		UserID: domain.UserID(r.URL.Query().Get("id")),
	}
	if claim.Token == "" {
		if cookie, err := r.Cookie(accessCookie); err == nil {
			claim.Token = cookie.Value
		}
	}

	user, admitErr := h.Sessions.Admit(r.Context(), claim)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	if admitErr != nil {
		log.Warn().Err(admitErr).Str("remote", r.RemoteAddr).Msg("Refusing unauthenticated connection")
		refuse(conn, h.opts.WriteTimeout)
		return
	}

	conn.SetReadLimit(h.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))
	})

	client := newWSClient(conn, user, h.opts)
	l := client.l
	ctx := context.WithoutCancel(r.Context())

	go client.writePump()
	h.Sessions.Connect(ctx, user, client)

	defer func() {
		client.Close("connection closed")
		cleanupCtx, cancel := context.WithTimeout(ctx, cleanupTimeout)
		defer cancel()
		h.Sessions.Disconnect(cleanupCtx, user, client.handle)
		l.Info().Msg("Client disconnected")
	}()

	// listening for browser
	for {
		_, r, err := conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		// a bad frame only costs the frame, the connection stays up
		var req incomingDTO
		if err := json.NewDecoder(r).Decode(&req); err != nil {
			l.Warn().Err(err).Msg("Invalid message")
			continue
		}

		outcome, err := h.Calls.HandleSignal(ctx, client.handle, req.signal())
		if err != nil {
			l.Warn().Err(err).Str("type", req.Type).Msg("Failed to handle signal")
			continue
		}
		l.Debug().Str("type", req.Type).Str("to", req.To).Stringer("outcome", outcome).Msg("Signal handled")
	}
}

// refuse sends the single auth-failure notice and closes the socket.
func refuse(conn *websocket.Conn, writeTimeout time.Duration) {
	defer conn.Close()
	deadline := time.Now().Add(writeTimeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteJSON(domain.Event{
		Type:    domain.EventAuthFailure,
		Message: authFailureMessage,
	})
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, authFailureMessage)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
}
