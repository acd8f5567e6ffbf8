package grouping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errormonitor/internal/logparse"
	"errormonitor/internal/store"
)

func TestLookupOrCreate_NewErrorGetsOwnKey(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	g := New(s, time.Hour)

	def, _, _ := logparse.Parse("Something broke", 500, 3)
	key, err := g.LookupOrCreate(def)
	require.NoError(t, err)
	assert.Equal(t, def.Key, key)
}

func TestLookupOrCreate_SameMessageResolvesToSameKey(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	g := New(s, time.Hour)

	def1, _, _ := logparse.Parse("Error while parsing directive 1", 500, 3)
	def2, _, _ := logparse.Parse("Error while parsing directive 2", 500, 3)

	key1, err := g.LookupOrCreate(def1)
	require.NoError(t, err)
	key2, err := g.LookupOrCreate(def2)
	require.NoError(t, err)

	assert.Equal(t, key1, key2, "digit-only differences must resolve to the same error key")
}

func TestLookupOrCreate_CacheResetForcesStoreLookup(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	g := New(s, time.Hour)

	def, _, _ := logparse.Parse("Something broke", 500, 3)
	key1, err := g.LookupOrCreate(def)
	require.NoError(t, err)

	g.Reset()

	key2, err := g.LookupOrCreate(def)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
}

func TestLookupOrCreate_ObjectHasNoAttributeDoesNotCrossMatch(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	g := New(s, time.Hour)

	defA, _, _ := logparse.Parse("Foo object has no attribute Bar", 500, 3)
	defB, _, _ := logparse.Parse("Foo object has no attribute Baz", 500, 3)

	keyA, err := g.LookupOrCreate(defA)
	require.NoError(t, err)
	keyB, err := g.LookupOrCreate(defB)
	require.NoError(t, err)

	assert.NotEqual(t, keyA, keyB, "object-has-no-attribute titles must only match on exact id0")
}

func TestLookupOrCreate_RefreshesTitleOnRecurrence(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	g := New(s, time.Hour)

	def1, _, _ := logparse.Parse("Error while parsing directive 1", 500, 3)
	_, err := g.LookupOrCreate(def1)
	require.NoError(t, err)

	def2, _, _ := logparse.Parse("Error while parsing directive 999", 500, 3)
	key2, err := g.LookupOrCreate(def2)
	require.NoError(t, err)

	payload, ok, err := g.loadPayload(key2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Error while parsing directive 999", payload.Title)
}
