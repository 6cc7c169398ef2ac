package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"devblog/internal/storage"
)

const (
	darkModeKey = "darkMode"
	flashKey    = "flash"
	draftPrefix = "draft_"
)

func getSetting(ctx context.Context, s storage.Storage, key string) (string, error) {
	value, _, err := s.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("getting setting %q: %w", key, err)
	}
	return value, nil
}

func setSetting(ctx context.Context, s storage.Storage, key, value string) error {
	if err := s.Set(ctx, key, value); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// darkMode defaults to on when the visitor never chose.
func darkMode(ctx context.Context, s storage.Storage) bool {
	v, err := getSetting(ctx, s, darkModeKey)
	if err != nil || v == "" {
		return true
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return on
}

func setDarkMode(ctx context.Context, s storage.Storage, on bool) error {
	return setSetting(ctx, s, darkModeKey, strconv.FormatBool(on))
}

type flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func setFlash(ctx context.Context, s storage.Storage, level, message string) error {
	b, err := json.Marshal(flash{Level: level, Message: message})
	if err != nil {
		return err
	}
	return setSetting(ctx, s, flashKey, string(b))
}

// popFlash returns the pending notice, if any, and forgets it.
func popFlash(ctx context.Context, s storage.Storage) *flash {
	v, err := getSetting(ctx, s, flashKey)
	if err != nil || v == "" {
		return nil
	}
	_ = s.Delete(ctx, flashKey)

	var f flash
	if err := json.Unmarshal([]byte(v), &f); err != nil {
		return nil
	}
	return &f
}

type draft struct {
	Content      string `json:"content"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailURL"`
	Categories   []int  `json:"categories"`
}

// draftKey names the draft slot of an article; new articles share "new".
func draftKey(id string) string {
	if id == "" {
		id = "new"
	}
	return draftPrefix + id
}

func loadDraft(ctx context.Context, s storage.Storage, id string) (*draft, error) {
	v, err := getSetting(ctx, s, draftKey(id))
	if err != nil || v == "" {
		return nil, err
	}
	var d draft
	if err := json.Unmarshal([]byte(v), &d); err != nil {
		return nil, fmt.Errorf("decoding draft %s: %w", id, err)
	}
	return &d, nil
}

func saveDraft(ctx context.Context, s storage.Storage, id string, d draft) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return setSetting(ctx, s, draftKey(id), string(b))
}

func deleteDraft(ctx context.Context, s storage.Storage, id string) error {
	if err := s.Delete(ctx, draftKey(id)); err != nil {
		return fmt.Errorf("deleting draft %s: %w", id, err)
	}
	return nil
}
