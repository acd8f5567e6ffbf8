// Package grouping resolves a parsed ErrorDefinition to a stable error key,
// deduplicating recurring errors via a multi-identifier matcher backed by
// the store.
package grouping

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"errormonitor/internal/models"
	"errormonitor/internal/store"
)

const errorKeyPrefix = "error:"

// allKeysSet indexes every error key ever created, non-expiring like the
// identifier hashes, so HTTP reads can enumerate candidate keys without a
// generic key-scan capability. Membership here does not imply the
// underlying error:{key} payload is still live; callers must check that
// separately.
const allKeysSet = "all_error_keys"

var idHashKeys = [4]string{"errordef:id0", "errordef:id1", "errordef:id2", "errordef:id3"}

// defaultTTL is the lifecycle TTL applied to `error:{key}` payloads; every
// write refreshes it. The identifier hash tables are intentionally
// non-expiring: a stale id entry resolves to its old key, and
// refreshPayload rewrites an expired payload under that same key.
const defaultTTL = 7 * 24 * time.Hour

// Grouper looks up or creates the stable error key for a parsed
// ErrorDefinition. It keeps a process-wide, lock-protected cache of
// resolved keys and identifier bindings so that repeat occurrences of the
// same error avoid a store round trip; the cache is populated on read and
// on write and is never evicted except via Reset.
type Grouper struct {
	store store.Store
	ttl   time.Duration

	mu       sync.RWMutex
	keyAlias map[string]string                 // def.Key -> resolved error key
	idCache  map[string]string                 // id value -> resolved error key
	defCache map[string]models.ErrorDefinition // resolved error key -> cached payload
}

// New builds a Grouper with the given TTL for error-def payloads. A
// non-positive ttl selects the default 7-day lifecycle.
func New(s store.Store, ttl time.Duration) *Grouper {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Grouper{
		store:    s,
		ttl:      ttl,
		keyAlias: make(map[string]string),
		idCache:  make(map[string]string),
		defCache: make(map[string]models.ErrorDefinition),
	}
}

// Reset clears all in-process caches; tests use this to isolate cases.
func (g *Grouper) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keyAlias = make(map[string]string)
	g.idCache = make(map[string]string)
	g.defCache = make(map[string]models.ErrorDefinition)
}

// LookupOrCreate resolves def to its stable error key, creating a new
// `error:{key}` payload if nothing matches, or refreshing the existing
// payload's title/status/level if a match is found.
func (g *Grouper) LookupOrCreate(def models.ErrorDefinition) (string, error) {
	ttl := g.ttl

	resolvedKey, matched, err := g.resolve(def)
	if err != nil {
		return "", err
	}

	if !matched {
		resolvedKey = def.Key
		if err := g.writeFreshPayload(resolvedKey, def, ttl); err != nil {
			return "", err
		}
	} else {
		if err := g.refreshPayload(resolvedKey, def, ttl); err != nil {
			return "", err
		}
	}

	g.indexIdentifiers(resolvedKey, def)

	g.mu.Lock()
	g.keyAlias[def.Key] = resolvedKey
	g.mu.Unlock()

	return resolvedKey, nil
}

// resolve implements the four-step lookup order from the grouping contract:
// in-memory key alias, store payload, in-memory id cache, store id hashes.
func (g *Grouper) resolve(def models.ErrorDefinition) (key string, matched bool, err error) {
	g.mu.RLock()
	if k, ok := g.keyAlias[def.Key]; ok {
		g.mu.RUnlock()
		return k, true, nil
	}
	g.mu.RUnlock()

	if ok, err := g.store.Exists(errorKeyPrefix + def.Key); err != nil {
		return "", false, fmt.Errorf("grouping: store unavailable: %w", err)
	} else if ok {
		return def.Key, true, nil
	}

	ids := []string{def.Id0, def.Id1, def.Id2, def.Id3}

	g.mu.RLock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if k, ok := g.idCache[id]; ok {
			g.mu.RUnlock()
			return k, true, nil
		}
	}
	g.mu.RUnlock()

	for i, id := range ids {
		if id == "" {
			continue
		}
		hashKey := idHashKeys[i]
		fields, err := g.store.HGetAll(hashKey)
		if err != nil {
			return "", false, fmt.Errorf("grouping: store unavailable: %w", err)
		}
		if k, ok := fields[id]; ok && k != "" {
			return k, true, nil
		}
	}

	return "", false, nil
}

// writeFreshPayload stores def verbatim as a new `error:{key}` entry.
func (g *Grouper) writeFreshPayload(key string, def models.ErrorDefinition, ttl time.Duration) error {
	payload := def
	payload.Key = key
	return g.put(key, payload, ttl)
}

// refreshPayload updates the existing payload's title/status/level to the
// latest occurrence, preserving its id0..id3/key — unless the payload has
// expired, in which case a fresh payload (carrying def's own ids) is
// written under the existing key without migrating the key itself.
func (g *Grouper) refreshPayload(key string, def models.ErrorDefinition, ttl time.Duration) error {
	existing, ok, err := g.loadPayload(key)
	if err != nil {
		return err
	}
	if !ok {
		return g.writeFreshPayload(key, def, ttl)
	}

	existing.Title = def.Title
	existing.Status = def.Status
	existing.Level = def.Level
	return g.put(key, existing, ttl)
}

// LoadDefinition returns the current error definition stored under key, if
// its payload is still live.
func (g *Grouper) LoadDefinition(key string) (models.ErrorDefinition, bool, error) {
	return g.loadPayload(key)
}

// AllKeys returns every error key ever created, including ones whose
// payload has since expired; callers must filter with LoadDefinition or
// Exists as appropriate.
func (g *Grouper) AllKeys() ([]string, error) {
	keys, err := g.store.SMembers(allKeysSet)
	if err != nil {
		return nil, fmt.Errorf("grouping: store unavailable: %w", err)
	}
	return keys, nil
}

func (g *Grouper) loadPayload(key string) (models.ErrorDefinition, bool, error) {
	g.mu.RLock()
	if cached, ok := g.defCache[key]; ok {
		g.mu.RUnlock()
		return cached, true, nil
	}
	g.mu.RUnlock()

	raw, err := g.store.Get(errorKeyPrefix + key)
	if err == store.ErrNotFound {
		return models.ErrorDefinition{}, false, nil
	}
	if err != nil {
		return models.ErrorDefinition{}, false, fmt.Errorf("grouping: store unavailable: %w", err)
	}

	var def models.ErrorDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return models.ErrorDefinition{}, false, nil
	}
	return def, true, nil
}

func (g *Grouper) put(key string, def models.ErrorDefinition, ttl time.Duration) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return err
	}
	if err := g.store.Set(errorKeyPrefix+key, raw, ttl); err != nil {
		return fmt.Errorf("grouping: store unavailable: %w", err)
	}
	if err := g.store.SAdd(allKeysSet, key); err != nil {
		return fmt.Errorf("grouping: store unavailable: %w", err)
	}

	g.mu.Lock()
	g.defCache[key] = def
	g.mu.Unlock()
	return nil
}

// indexIdentifiers writes each non-empty id of the current occurrence into
// its errordef:idN hash, and refreshes the in-memory id cache.
func (g *Grouper) indexIdentifiers(key string, def models.ErrorDefinition) {
	ids := []string{def.Id0, def.Id1, def.Id2, def.Id3}

	g.mu.Lock()
	for _, id := range ids {
		if id != "" {
			g.idCache[id] = key
		}
	}
	g.mu.Unlock()

	for i, id := range ids {
		if id == "" {
			continue
		}
		_ = g.store.HSet(idHashKeys[i], map[string]any{id: key})
	}
}
