package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/ovenfresh/storefront-cart/pkg/errors"
	"github.com/ovenfresh/storefront-cart/pkg/kv"
	"github.com/ovenfresh/storefront-cart/pkg/logger"
)

const emptyCollection = "[]"

// Persister flushes the cart collections into durable storage and restores
// them on startup, recovering from corrupt payloads per key.
type Persister struct {
	store     kv.Store
	logg      *logger.Logger
	activeKey string
	savedKey  string
}

// NewPersister wires a persister over the given store.
func NewPersister(store kv.Store, logg *logger.Logger, activeKey, savedKey string) (*Persister, error) {
	if store == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if activeKey == "" || savedKey == "" {
		return nil, fmt.Errorf("storage keys required")
	}
	if activeKey == savedKey {
		return nil, fmt.Errorf("active and saved keys must differ")
	}
	return &Persister{store: store, logg: logg, activeKey: activeKey, savedKey: savedKey}, nil
}

// SaveActive writes the active collection.
func (p *Persister) SaveActive(ctx context.Context, items []LineItem) error {
	payload, err := EncodeActive(items)
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, p.activeKey, payload); err != nil {
		return fmt.Errorf("persist active collection: %w", err)
	}
	return nil
}

// SaveSaved writes the saved-for-later collection.
func (p *Persister) SaveSaved(ctx context.Context, items []SavedItem) error {
	payload, err := EncodeSaved(items)
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, p.savedKey, payload); err != nil {
		return fmt.Errorf("persist saved collection: %w", err)
	}
	return nil
}

// LoadActive restores the active collection. A corrupt payload resets the
// key to empty instead of propagating.
func (p *Persister) LoadActive(ctx context.Context) ([]LineItem, error) {
	raw, err := p.load(ctx, p.activeKey)
	if err != nil || raw == "" {
		return nil, err
	}
	items, decodeErr := DecodeActive(raw)
	if decodeErr != nil {
		return nil, p.recoverCorrupt(ctx, p.activeKey, raw, decodeErr)
	}
	return items, nil
}

// LoadSaved restores the saved-for-later collection.
func (p *Persister) LoadSaved(ctx context.Context) ([]SavedItem, error) {
	raw, err := p.load(ctx, p.savedKey)
	if err != nil || raw == "" {
		return nil, err
	}
	items, decodeErr := DecodeSaved(raw)
	if decodeErr != nil {
		return nil, p.recoverCorrupt(ctx, p.savedKey, raw, decodeErr)
	}
	return items, nil
}

func (p *Persister) load(ctx context.Context, key string) (string, error) {
	raw, err := p.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if isEmptyMarker(raw) {
		return "", nil
	}
	return raw, nil
}

// recoverCorrupt resets a key whose payload cannot be parsed. An absent or
// empty-collection payload never reaches here, so every reset is a real
// discard and is logged. The payload contents are never logged.
func (p *Persister) recoverCorrupt(ctx context.Context, key, raw string, cause error) error {
	corrupt := pkgerrors.Wrap(pkgerrors.CodeCorruption, cause, "unreadable cart payload")
	logCtx := p.logg.WithStorageKey(ctx, key)
	logCtx = p.logg.WithField(logCtx, "payload_bytes", len(raw))
	p.logg.Error(logCtx, "discarding unreadable cart payload", corrupt)

	if err := p.store.Set(ctx, key, emptyCollection); err != nil {
		return fmt.Errorf("reset corrupt key %s: %w", key, err)
	}
	return nil
}

// isEmptyMarker recognizes payloads that denote an empty collection; a
// parse failure on these is not corruption.
func isEmptyMarker(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return trimmed == "" || trimmed == emptyCollection || trimmed == "null"
}
