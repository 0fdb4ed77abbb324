package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// httpToWS converts an http(s):// base URL into its ws(s):// equivalent.
func httpToWS(base string) string {
	if strings.HasPrefix(base, "https://") {
		return "wss://" + strings.TrimPrefix(base, "https://")
	}
	return "ws://" + strings.TrimPrefix(base, "http://")
}

func TestWSRequiresAuthHandshakeForNonLoopback(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(forceRemoteAddr(srv.Mux(""), "203.0.113.5:12345"))
	defer ts.Close()

	// The server only answers once wsAuthTimeout (10s) has passed without an
	// auth frame, so the client must wait longer than that.
	ctx, cancel := context.WithTimeout(context.Background(), wsAuthTimeout+5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, httpToWS(ts.URL)+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var errFrame wsErrorFrame
	if err := wsjson.Read(ctx, conn, &errFrame); err != nil {
		t.Fatalf("reading error frame: %v", err)
	}
	if errFrame.Error != "Unauthorized" {
		t.Fatalf("expected Unauthorized error frame, got %+v", errFrame)
	}
}

func TestWSAcceptsValidAuthHandshake(t *testing.T) {
	srv := newTestServer(t)
	token := srv.Dispatcher.AuthTokens.Token()
	ts := httptest.NewServer(forceRemoteAddr(srv.Mux(""), "203.0.113.5:12345"))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, httpToWS(ts.URL)+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := wsjson.Write(ctx, conn, wsAuthFrame{Auth: token}); err != nil {
		t.Fatalf("writing auth frame: %v", err)
	}

	req := wsRequest{ID: "1", Command: "auth_status"}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	var resp wsMessage
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if resp.Kind != "response" || !resp.OK {
		t.Fatalf("expected ok response, got %+v", resp)
	}
}

func TestWSLoopbackSkipsHandshake(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(forceRemoteAddr(srv.Mux(""), "127.0.0.1:12345"))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, httpToWS(ts.URL)+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	req := wsRequest{ID: "1", Command: "auth_status"}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	var resp wsMessage
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if resp.Kind != "response" || !resp.OK {
		t.Fatalf("expected ok response, got %+v", resp)
	}
}

// forceRemoteAddr rewrites every request's RemoteAddr before delegating, so
// httptest.Server (which otherwise reports its own loopback listener
// address) can exercise the non-loopback auth path.
func forceRemoteAddr(next http.Handler, addr string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.RemoteAddr = addr
		next.ServeHTTP(w, r)
	})
}
