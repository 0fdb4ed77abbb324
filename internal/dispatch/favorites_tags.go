package dispatch

import "context"

func handleGetAllFavorites(ctx context.Context, d *Dispatcher, _ Payload) (any, error) {
	return d.Store.ListFavorites(ctx)
}

func handleAddFavorite(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, d.Store.AddFavorite(ctx, path)
}

func handleRemoveFavorite(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, d.Store.RemoveFavorite(ctx, path)
}

func handleIsFavorite(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	fav, err := d.Store.IsFavorite(ctx, path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"isFavorite": fav}, nil
}

func handleToggleFavorite(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	fav, err := d.Store.IsFavorite(ctx, path)
	if err != nil {
		return nil, err
	}
	if fav {
		if err := d.Store.RemoveFavorite(ctx, path); err != nil {
			return nil, err
		}
		return map[string]any{"isFavorite": false}, nil
	}
	if err := d.Store.AddFavorite(ctx, path); err != nil {
		return nil, err
	}
	return map[string]any{"isFavorite": true}, nil
}

func handleListTags(ctx context.Context, d *Dispatcher, _ Payload) (any, error) {
	return d.Store.ListTags(ctx)
}

func handleCreateTag(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	name, err := extractString(p, "name")
	if err != nil {
		return nil, err
	}
	color, _ := extractOptionalString(p, "color")
	autoRules, _ := extractOptionalString(p, "autoRules")
	return d.Store.CreateTag(ctx, name, color, autoRules)
}

func handleDeleteTag(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	id, err := extractInt64(p, "id")
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, d.Store.DeleteTag(ctx, id)
}

func handleTagSession(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	id, err := extractInt64(p, "tagId")
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, d.Store.TagSession(ctx, path, id)
}

func handleUntagSession(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	id, err := extractInt64(p, "tagId")
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, d.Store.UntagSession(ctx, path, id)
}

func handleGetSessionTags(ctx context.Context, d *Dispatcher, p Payload) (any, error) {
	path, err := extractString(p, "path")
	if err != nil {
		return nil, err
	}
	return d.Store.SessionTags(ctx, path)
}
