package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pi-agent/session-manager/internal/apperr"
	"github.com/pi-agent/session-manager/internal/authtoken"
	"github.com/pi-agent/session-manager/internal/broadcast"
	"github.com/pi-agent/session-manager/internal/config"
	"github.com/pi-agent/session-manager/internal/scanner"
	"github.com/pi-agent/session-manager/internal/store"
	"github.com/pi-agent/session-manager/internal/terminal"
	"github.com/pi-agent/session-manager/internal/writebuffer"
)

const sampleTranscript = `{"type":"session","id":"s1","cwd":"/tmp","timestamp":"2026-01-01T00:00:00Z"}
{"type":"message","id":"m1","timestamp":"2026-01-01T00:00:01Z","message":{"role":"user","content":[{"type":"text","text":"hello"}]}}
`

func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	sessionsDir := t.TempDir()
	dataDir := t.TempDir()

	st, err := store.Open(dataDir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	wb := writebuffer.New(st)
	t.Cleanup(wb.Close)

	cfg := &config.ScanConfig{SessionsDir: sessionsDir, RealtimeCutoffDays: 2}
	sc := scanner.New(cfg, st, wb)
	bc := broadcast.New()

	tokens, err := authtoken.Load(t.TempDir())
	if err != nil {
		t.Fatalf("authtoken.Load: %v", err)
	}

	return &Dispatcher{
		Store:      st,
		Scanner:    sc,
		WriteBuf:   wb,
		Terminals:  terminal.NewManager(bc),
		Broadcast:  bc,
		AuthTokens: tokens,
	}, sessionsDir
}

func writeSession(t *testing.T, dir string) string {
	t.Helper()
	proj := filepath.Join(dir, "proj")
	if err := os.MkdirAll(proj, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(proj, "a.jsonl")
	if err := os.WriteFile(path, []byte(sampleTranscript), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "does_not_exist", nil)
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !apperr.Is(err, apperr.Unsupported) {
		t.Fatalf("expected Unsupported kind, got %v", err)
	}
}

func TestDispatchMissingField(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "read_session_file", Payload{})
	if !apperr.Is(err, apperr.Invalid) {
		t.Fatalf("expected Invalid kind, got %v", err)
	}
}

func TestDispatchScanAndFavorite(t *testing.T) {
	d, dir := newTestDispatcher(t)
	path := writeSession(t, dir)

	res, err := d.Dispatch(context.Background(), "scan_sessions", nil)
	if err != nil {
		t.Fatalf("scan_sessions: %v", err)
	}
	if res == nil {
		t.Fatal("expected scan result")
	}

	_, err = d.Dispatch(context.Background(), "add_favorite", Payload{"path": path})
	if err != nil {
		t.Fatalf("add_favorite: %v", err)
	}

	res, err = d.Dispatch(context.Background(), "is_favorite", Payload{"path": path})
	if err != nil {
		t.Fatalf("is_favorite: %v", err)
	}
	m, ok := res.(map[string]any)
	if !ok || m["isFavorite"] != true {
		t.Fatalf("expected isFavorite true, got %v", res)
	}
}

func TestDispatchAuthStatusAndRotate(t *testing.T) {
	d, _ := newTestDispatcher(t)

	res, err := d.Dispatch(context.Background(), "auth_status", nil)
	if err != nil {
		t.Fatalf("auth_status: %v", err)
	}
	m := res.(map[string]any)
	if m["hasToken"] != true {
		t.Fatalf("expected hasToken true, got %v", res)
	}

	before := d.AuthTokens.Token()
	res, err = d.Dispatch(context.Background(), "auth_generate_token", nil)
	if err != nil {
		t.Fatalf("auth_generate_token: %v", err)
	}
	after := res.(map[string]any)["token"].(string)
	if after == "" || after == before {
		t.Fatalf("expected a new non-empty token, before=%q after=%q", before, after)
	}
	if d.AuthTokens.Token() != after {
		t.Fatalf("store not updated: got %q, want %q", d.AuthTokens.Token(), after)
	}
}

func TestDispatchDeleteSessionRemovesFile(t *testing.T) {
	d, dir := newTestDispatcher(t)
	path := writeSession(t, dir)

	if _, err := d.Dispatch(context.Background(), "delete_session", Payload{"path": path}); err != nil {
		t.Fatalf("delete_session: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file to be removed, stat err=%v", err)
	}
}
