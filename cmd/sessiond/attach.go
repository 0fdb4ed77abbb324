package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pi-agent/session-manager/internal/broadcast"
	"github.com/pi-agent/session-manager/internal/terminal"
)

// newAttachCmd spawns a local PTY-backed shell and pipes it to the calling
// terminal directly, bypassing HTTP/WebSocket — a debugging aid for
// exercising internal/terminal without a UI client attached.
func newAttachCmd() *cobra.Command {
	var shell string

	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Open a local PTY shell for debugging the terminal subsystem",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isatty.IsTerminal(os.Stdin.Fd()) {
				return fmt.Errorf("attach requires an interactive terminal on stdin")
			}
			return runAttach(shell)
		},
	}
	cmd.Flags().StringVar(&shell, "shell", "", "shell to launch (default: $SHELL)")
	return cmd
}

func runAttach(shell string) error {
	cols, rows, err := terminalSize()
	if err != nil {
		cols, rows = 80, 24
	}

	bc := broadcast.New()
	mgr := terminal.NewManager(bc)
	t, err := mgr.Create(shell, "", cols, rows)
	if err != nil {
		return fmt.Errorf("creating terminal: %w", err)
	}
	defer mgr.CloseTerminal(t.ID)

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	id, events := bc.Subscribe()
	defer bc.Unsubscribe(id)

	resizeCh := make(chan os.Signal, 1)
	signal.Notify(resizeCh, syscall.SIGWINCH)
	defer signal.Stop(resizeCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Type != "terminal-output" {
				continue
			}
			payload, ok := ev.Payload.(map[string]any)
			if !ok || payload["terminalId"] != t.ID {
				continue
			}
			data, _ := payload["data"].(string)
			os.Stdout.WriteString(data)
		}
	}()

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if werr := t.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err == io.EOF || err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-resizeCh:
			if c, r, err := terminalSize(); err == nil {
				t.Resize(c, r)
			}
		case <-done:
			return nil
		}
	}
}

func terminalSize() (cols, rows uint16, err error) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0, 0, err
	}
	return uint16(w), uint16(h), nil
}
