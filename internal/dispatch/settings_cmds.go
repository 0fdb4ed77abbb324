package dispatch

import (
	"context"
	"encoding/json"

	"github.com/pi-agent/session-manager/internal/apperr"
	"github.com/pi-agent/session-manager/internal/config"
)

func handleLoadSettings(ctx context.Context, d *Dispatcher, _ Payload) (any, error) {
	data, err := config.LoadSettings()
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "loading settings", err)
	}
	return json.RawMessage(data), nil
}

func handleSaveSettings(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	raw, ok := p["settings"]
	if !ok {
		return nil, apperr.Invalidf("Missing or invalid field: settings")
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, apperr.Invalidf("Missing or invalid field: settings")
	}

	if err := config.SaveSettings(payload); err != nil {
		return nil, apperr.Wrap(apperr.IO, "saving settings", err)
	}
	path, _ := config.SettingsPath()
	if err := d.Store.SaveSettingsVersion(ctx, path, payload); err != nil {
		return nil, apperr.Wrap(apperr.IO, "recording settings version", err)
	}
	return map[string]any{"saved": true}, nil
}
