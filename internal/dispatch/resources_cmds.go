package dispatch

import (
	"context"

	"github.com/pi-agent/session-manager/internal/apperr"
	"github.com/pi-agent/session-manager/internal/resources"
)

func handleScanSkills(_ context.Context, d *Dispatcher, _ Payload) (any, error) {
	dir, err := configDirFor(d)
	if err != nil {
		return nil, err
	}
	return resources.ScanDir(resources.SkillsDir(dir))
}

func handleScanPrompts(_ context.Context, d *Dispatcher, _ Payload) (any, error) {
	dir, err := configDirFor(d)
	if err != nil {
		return nil, err
	}
	return resources.ScanDir(resources.PromptsDir(dir))
}

func handleGetSkillContent(_ context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	dir, err := configDirFor(d)
	if err != nil {
		return nil, err
	}
	content, err := resources.ReadContent(resources.SkillsDir(dir), path)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "reading skill", err)
	}
	return content, nil
}

func handleGetPromptContent(_ context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	dir, err := configDirFor(d)
	if err != nil {
		return nil, err
	}
	content, err := resources.ReadContent(resources.PromptsDir(dir), path)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, "reading prompt", err)
	}
	return content, nil
}
