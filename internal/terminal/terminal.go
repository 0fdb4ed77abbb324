// Package terminal multiplexes PTY-backed shell sessions so multiple
// WebSocket clients can attach to and detach from the same running shell,
// adapted from this codebase's session manager for terminal multiplexing
// over a relay connection.
package terminal

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/pi-agent/session-manager/internal/broadcast"
)

// Terminal is one PTY-backed shell process.
type Terminal struct {
	ID      string
	cmd     *exec.Cmd
	pty     *os.File
	started time.Time

	mu     sync.Mutex
	closed bool
}

// Manager tracks live terminals and fans their output through a shared
// Broadcaster.
type Manager struct {
	bc *broadcast.Broadcaster

	mu        sync.Mutex
	terminals map[string]*Terminal
}

// NewManager creates a Manager publishing terminal output through bc.
func NewManager(bc *broadcast.Broadcaster) *Manager {
	return &Manager{bc: bc, terminals: make(map[string]*Terminal)}
}

// Create spawns a new shell (cwd may be empty to use the process's current
// directory) and begins streaming its output through the broadcaster.
func (m *Manager) Create(shell, cwd string, cols, rows uint16) (*Terminal, error) {
	if shell == "" {
		shell = defaultShell()
	}

	cmd := exec.Command(shell)
	cmd.Dir = cwd
	cmd.Env = buildEnv()

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("starting pty: %w", err)
	}

	t := &Terminal{
		ID:      uuid.NewString(),
		cmd:     cmd,
		pty:     f,
		started: time.Now(),
	}

	m.mu.Lock()
	m.terminals[t.ID] = t
	m.mu.Unlock()

	go m.readLoop(t)

	return t, nil
}

func (m *Manager) readLoop(t *Terminal) {
	buf := make([]byte, 4096)
	var carry []byte

	for {
		n, err := t.pty.Read(buf)
		if n > 0 {
			carry = append(carry, buf[:n]...)
			emit, rest := utf8Prefix(carry)
			if len(emit) > 0 {
				m.bc.TerminalOutput(t.ID, emit)
			}
			carry = rest
		}
		if err != nil {
			if len(carry) > 0 {
				m.bc.TerminalOutput(t.ID, carry)
			}
			m.remove(t.ID)
			return
		}
	}
}

// utf8Prefix splits b into the longest valid-UTF-8 prefix and the remaining
// bytes that might complete a multi-byte rune on the next read. PTY reads
// can split a multi-byte UTF-8 sequence across chunk boundaries, and the
// boundary must never be exposed to clients mid-rune.
func utf8Prefix(b []byte) (emit, rest []byte) {
	if utf8.Valid(b) {
		return b, nil
	}
	// Walk back from the end looking for where a truncated rune might start;
	// a complete UTF-8 sequence is at most 4 bytes.
	for back := 1; back <= 4 && back <= len(b); back++ {
		cut := len(b) - back
		if utf8.Valid(b[:cut]) {
			return b[:cut], b[cut:]
		}
	}
	return nil, b
}

// Write sends bytes to the terminal's stdin.
func (t *Terminal) Write(data []byte) error {
	_, err := t.pty.Write(data)
	return err
}

// Resize updates the PTY window size.
func (t *Terminal) Resize(cols, rows uint16) error {
	return pty.Setsize(t.pty, &pty.Winsize{Cols: cols, Rows: rows})
}

// Close terminates the shell process and releases the PTY file descriptor.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	return t.pty.Close()
}

// Get returns a live terminal by id.
func (m *Manager) Get(id string) (*Terminal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.terminals[id]
	return t, ok
}

// List returns the ids of all live terminals.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.terminals))
	for id := range m.terminals {
		ids = append(ids, id)
	}
	return ids
}

// CloseTerminal closes and forgets a terminal by id.
func (m *Manager) CloseTerminal(id string) error {
	m.mu.Lock()
	t, ok := m.terminals[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("terminal not found: %s", id)
	}
	return t.Close()
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.terminals, id)
	m.mu.Unlock()
	slog.Debug("terminal exited", "id", id)
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// buildEnv returns the current process environment, stripping variables the
// host agent sets that a nested shell should not inherit.
func buildEnv() []string {
	env := os.Environ()
	out := env[:0]
	for _, kv := range env {
		if len(kv) >= len("CLAUDECODE=") && kv[:len("CLAUDECODE=")] == "CLAUDECODE=" {
			continue
		}
		out = append(out, kv)
	}
	return out
}
