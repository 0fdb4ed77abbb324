package transport

import (
	"context"
	"log/slog"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/pi-agent/session-manager/internal/apperr"
	"github.com/pi-agent/session-manager/internal/broadcast"
	"github.com/pi-agent/session-manager/internal/dispatch"

	"net/http"
)

// wsRequest is an inbound dispatch call framed as a JSON text message. Id is
// echoed back on the response so a client can match replies to requests
// while events arrive interleaved on the same socket.
type wsRequest struct {
	ID      string           `json:"id,omitempty"`
	Command string           `json:"command"`
	Payload dispatch.Payload `json:"payload"`
}

// wsMessage is the single envelope shape sent to clients, covering both
// dispatch replies (Kind "response") and pushed broadcast events (Kind
// "event").
type wsMessage struct {
	Kind    string `json:"kind"`
	ID      string `json:"id,omitempty"`
	OK      bool   `json:"ok,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Event   string `json:"event,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

const (
	wsWriteTimeout = 5 * time.Second
	wsAuthTimeout  = 10 * time.Second
)

// wsAuthFrame is the expected shape of the first inbound frame on a
// connection that requires authentication.
type wsAuthFrame struct {
	Auth string `json:"auth"`
}

// wsErrorFrame is sent verbatim (not wrapped in wsMessage) when the
// post-upgrade auth handshake fails, matching the documented wire shape.
type wsErrorFrame struct {
	Error string `json:"error"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if s.AllowOrigin != "" {
		opts.OriginPatterns = []string{s.AllowOrigin}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Warn("ws accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	// Auth, unlike /api, happens after the upgrade: the client must send
	// {"auth":"<token>"} as its first text frame within wsAuthTimeout.
	// Loopback clients are trusted implicitly, same as the HTTP path.
	if s.Auth.RequiresAuth(r) && !s.authenticateWS(r.Context(), conn) {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id, events := s.Dispatcher.Broadcast.Subscribe()
	defer s.Dispatcher.Broadcast.Unsubscribe(id)

	// outgoing is shared by two producers (pumpEvents, readLoop) and one
	// consumer (this loop); cancelling ctx is the only shutdown signal, so
	// neither producer ever writes to a channel the other has closed.
	outgoing := make(chan wsMessage, 32)
	go s.pumpEvents(ctx, events, outgoing)
	go s.readLoop(ctx, cancel, conn, outgoing)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-outgoing:
			wctx, wcancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, msg)
			wcancel()
			if err != nil {
				return
			}
		}
	}
}

// authenticateWS reads the first inbound frame and requires it to carry a
// valid token within wsAuthTimeout. On failure or timeout it sends an
// Unauthorized error frame and closes the connection.
func (s *Server) authenticateWS(ctx context.Context, conn *websocket.Conn) bool {
	// The read runs under ctx, not under a deadline: the websocket library
	// closes the connection when a read's context expires, which would leave
	// no way to send the Unauthorized frame on timeout.
	type authResult struct {
		frame wsAuthFrame
		err   error
	}
	results := make(chan authResult, 1)
	go func() {
		var frame wsAuthFrame
		err := wsjson.Read(ctx, conn, &frame)
		results <- authResult{frame, err}
	}()

	timer := time.NewTimer(wsAuthTimeout)
	defer timer.Stop()
	select {
	case res := <-results:
		if res.err == nil && s.Auth.ValidToken(res.frame.Auth) {
			return true
		}
	case <-timer.C:
	}

	wctx, wcancel := context.WithTimeout(ctx, wsWriteTimeout)
	_ = wsjson.Write(wctx, conn, wsErrorFrame{Error: "Unauthorized"})
	wcancel()
	conn.Close(websocket.StatusPolicyViolation, "unauthorized")
	return false
}

// pumpEvents bridges broadcast.Event values into the outgoing message
// stream until ctx is cancelled.
func (s *Server) pumpEvents(ctx context.Context, events <-chan broadcast.Event, outgoing chan<- wsMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			select {
			case outgoing <- wsMessage{Kind: "event", Event: ev.Type, Payload: ev.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// readLoop decodes inbound dispatch requests and feeds their responses into
// outgoing, calling cancel once the client disconnects or sends garbage.
func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, outgoing chan<- wsMessage) {
	defer cancel()
	for {
		var req wsRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			return
		}

		result, err := s.Dispatcher.Dispatch(ctx, req.Command, req.Payload)
		resp := wsMessage{Kind: "response", ID: req.ID}
		if err != nil {
			resp.Error = err.Error()
			if ae, ok := asAppErr(err); ok {
				resp.Payload = map[string]string{"kind": string(ae.Kind)}
			}
		} else {
			resp.OK = true
			resp.Result = result
		}

		select {
		case outgoing <- resp:
		case <-ctx.Done():
			return
		}
	}
}

func asAppErr(err error) (*apperr.Error, bool) {
	ae, ok := err.(*apperr.Error)
	return ae, ok
}
