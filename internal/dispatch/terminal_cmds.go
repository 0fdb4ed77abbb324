package dispatch

import (
	"context"

	"github.com/pi-agent/session-manager/internal/apperr"
)

func handleTerminalCreate(_ context.Context, d *Dispatcher, p Payload) (any, error) {
	shell, _ := extractOptionalString(p, "shell")
	cwd, _ := extractOptionalString(p, "cwd")
	cols := optionalUsize(p, "cols", 80)
	rows := optionalUsize(p, "rows", 24)

	t, err := d.Terminals.Create(shell, cwd, uint16(cols), uint16(rows))
	if err != nil {
		return nil, apperr.Wrap(apperr.Subprocess, "creating terminal", err)
	}
	return map[string]any{"id": t.ID}, nil
}

func handleTerminalWrite(_ context.Context, d *Dispatcher, p Payload) (any, error) {
	id, err := extractString(p, "id")
	if err != nil {
		return nil, err
	}
	data, err := extractString(p, "data")
	if err != nil {
		return nil, err
	}
	t, ok := d.Terminals.Get(id)
	if !ok {
		return nil, apperr.NotFoundf("terminal not found: %s", id)
	}
	if err := t.Write([]byte(data)); err != nil {
		return nil, apperr.Wrap(apperr.IO, "writing to terminal", err)
	}
	return map[string]any{"ok": true}, nil
}

func handleTerminalResize(_ context.Context, d *Dispatcher, p Payload) (any, error) {
	id, err := extractString(p, "id")
	if err != nil {
		return nil, err
	}
	cols, err := extractUsize(p, "cols")
	if err != nil {
		return nil, err
	}
	rows, err := extractUsize(p, "rows")
	if err != nil {
		return nil, err
	}
	t, ok := d.Terminals.Get(id)
	if !ok {
		return nil, apperr.NotFoundf("terminal not found: %s", id)
	}
	if err := t.Resize(uint16(cols), uint16(rows)); err != nil {
		return nil, apperr.Wrap(apperr.IO, "resizing terminal", err)
	}
	return map[string]any{"ok": true}, nil
}

func handleTerminalClose(_ context.Context, d *Dispatcher, p Payload) (any, error) {
	id, err := extractString(p, "id")
	if err != nil {
		return nil, err
	}
	if err := d.Terminals.CloseTerminal(id); err != nil {
		return nil, apperr.Wrap(apperr.NotFound, "closing terminal", err)
	}
	return map[string]any{"ok": true}, nil
}

func handleTerminalList(_ context.Context, d *Dispatcher, _ Payload) (any, error) {
	return d.Terminals.List(), nil
}
