package store

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// memoryStoreItem holds the value and expiration timestamp for a key.
type memoryStoreItem struct {
	value     []byte
	expiresAt int64 // Unix-nano timestamp. 0 for no expiry.
}

// MemoryStore is an in-memory key-value store that is safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex
	data            map[string]any
	// expiry holds TTL deadlines for collection-typed keys (hash/list/set/
	// zset), which are stored as raw Go values in data rather than the
	// memoryStoreItem wrapper simple KV entries use. Unix-nano; 0 means no
	// expiry. Guarded by mu.
	expiry          map[string]int64
	muSubscribers   sync.RWMutex
	subscribers     map[string]map[chan *Message]struct{}
	droppedMessages atomic.Int64
	stopCleanup     chan struct{} // Channel to stop cleanup goroutine
}

// NOTE: This store uses the global logrus logger configured at application startup to stay aligned
// with the rest of the project. If pluggable logging is required in the future, this can be
// refactored to depend on an internal logging interface instead of the package-level logger.

// NewMemoryStore creates and returns a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data:        make(map[string]any),
		expiry:      make(map[string]int64),
		subscribers: make(map[string]map[chan *Message]struct{}),
		stopCleanup: make(chan struct{}),
	}
	// Start background goroutine to periodically clean expired items
	// This prevents memory leaks from expired items that are never accessed
	go s.cleanupExpiredItems()
	return s
}

// Close cleans up resources.
func (s *MemoryStore) Close() error {
	// Stop cleanup goroutine
	close(s.stopCleanup)

	// Close all subscriber channels to prevent goroutine leaks
	// Note: We don't close channels directly here to avoid double-close panics.
	// Instead, we remove them from tracking and let memorySubscription.Close() handle cleanup.
	s.muSubscribers.Lock()
	for channel := range s.subscribers {
		delete(s.subscribers, channel)
	}
	s.muSubscribers.Unlock()

	return nil
}

// Set stores a key-value pair.
func (s *MemoryStore) Set(key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().UnixNano() + ttl.Nanoseconds()
	}

	s.data[key] = memoryStoreItem{
		value:     value,
		expiresAt: expiresAt,
	}
	return nil
}

// Get retrieves a value by its key.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	rawItem, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	item, ok := rawItem.(memoryStoreItem)
	if !ok {
		return nil, fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
	}

	if item.expiresAt > 0 && time.Now().UnixNano() > item.expiresAt {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	return item.value, nil
}

// Delete removes a value by its key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Del removes multiple values by their keys.
func (s *MemoryStore) Del(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

// Exists checks if a key exists.
func (s *MemoryStore) Exists(key string) (bool, error) {
	s.mu.RLock()
	rawItem, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return false, nil
	}

	if item, ok := rawItem.(memoryStoreItem); ok {
		if item.expiresAt > 0 && time.Now().UnixNano() > item.expiresAt {
			s.mu.Lock()
			delete(s.data, key)
			s.mu.Unlock()
			return false, nil
		}
		return true, nil
	}

	if s.collectionExpired(key) {
		s.mu.Lock()
		delete(s.data, key)
		delete(s.expiry, key)
		s.mu.Unlock()
		return false, nil
	}

	return true, nil
}

// SetNX sets a key-value pair if the key does not already exist.
func (s *MemoryStore) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawItem, exists := s.data[key]
	if exists {
		if item, ok := rawItem.(memoryStoreItem); ok {
			if item.expiresAt == 0 || time.Now().UnixNano() < item.expiresAt {
				return false, nil
			}
		} else {
			// Key exists but is not a simple K/V item, treat as existing
			return false, nil
		}
	}

	// Key does not exist or is expired, so we can set it.
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().UnixNano() + ttl.Nanoseconds()
	}
	s.data[key] = memoryStoreItem{
		value:     value,
		expiresAt: expiresAt,
	}
	return true, nil
}

// Expire sets (or refreshes) a TTL on any key regardless of its underlying
// collection type, without requiring the caller to know the value to
// rewrite it via Set. A non-positive ttl clears any existing expiration.
func (s *MemoryStore) Expire(key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawItem, exists := s.data[key]
	if !exists {
		return nil
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().UnixNano() + ttl.Nanoseconds()
	}

	if item, ok := rawItem.(memoryStoreItem); ok {
		item.expiresAt = expiresAt
		s.data[key] = item
		return nil
	}

	s.expiry[key] = expiresAt
	return nil
}

// collectionExpired reports whether a collection-typed key (hash/list/set/
// zset) has passed its TTL deadline. Caller must hold at least a read lock.
func (s *MemoryStore) collectionExpired(key string) bool {
	exp, ok := s.expiry[key]
	return ok && exp > 0 && time.Now().UnixNano() > exp
}

// --- HASH operations ---

func (s *MemoryStore) HSet(key string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash map[string]string
	rawHash, exists := s.data[key]
	if !exists {
		hash = make(map[string]string)
		s.data[key] = hash
	} else {
		var ok bool
		hash, ok = rawHash.(map[string]string)
		if !ok {
			return fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
		}
	}

	for field, value := range values {
		hash[field] = fmt.Sprint(value)
	}
	return nil
}

func (s *MemoryStore) HGetAll(key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rawHash, exists := s.data[key]
	if !exists || s.collectionExpired(key) {
		return make(map[string]string), nil
	}

	hash, ok := rawHash.(map[string]string)
	if !ok {
		return nil, fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
	}

	result := make(map[string]string, len(hash))
	for k, v := range hash {
		result[k] = v
	}

	return result, nil
}

func (s *MemoryStore) HIncrBy(key, field string, incr int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash map[string]string
	rawHash, exists := s.data[key]
	if !exists {
		hash = make(map[string]string)
		s.data[key] = hash
	} else {
		var ok bool
		hash, ok = rawHash.(map[string]string)
		if !ok {
			return 0, fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
		}
	}

	currentVal, _ := strconv.ParseInt(hash[field], 10, 64)
	newVal := currentVal + incr
	hash[field] = strconv.FormatInt(newVal, 10)

	return newVal, nil
}

// --- LIST operations ---

func (s *MemoryStore) LPush(key string, values ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []string
	rawList, exists := s.data[key]
	if !exists {
		list = make([]string, 0)
	} else {
		var ok bool
		list, ok = rawList.([]string)
		if !ok {
			return fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
		}
	}

	strValues := make([]string, len(values))
	for i, v := range values {
		strValues[i] = fmt.Sprint(v)
	}

	s.data[key] = append(strValues, list...) // Prepend
	return nil
}

func (s *MemoryStore) LRem(key string, count int64, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawList, exists := s.data[key]
	if !exists {
		return nil
	}

	list, ok := rawList.([]string)
	if !ok {
		return fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
	}

	strValue := fmt.Sprint(value)
	newList := make([]string, 0, len(list))

	if count != 0 {
		return fmt.Errorf("LRem with non-zero count is not implemented in MemoryStore")
	}

	for _, item := range list {
		if item != strValue {
			newList = append(newList, item)
		}
	}
	s.data[key] = newList
	return nil
}

func (s *MemoryStore) Rotate(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawList, exists := s.data[key]
	if !exists {
		return "", ErrNotFound
	}

	list, ok := rawList.([]string)
	if !ok {
		return "", fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
	}

	if len(list) == 0 {
		return "", ErrNotFound
	}

	lastIndex := len(list) - 1
	item := list[lastIndex]

	// "LPUSH"
	newList := append([]string{item}, list[:lastIndex]...)
	s.data[key] = newList

	return item, nil
}

// LLen returns the length of a list.
func (s *MemoryStore) LLen(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rawItem, exists := s.data[key]
	if !exists {
		return 0, nil
	}

	// Support both list and set types for flexibility
	switch v := rawItem.(type) {
	case []string:
		return int64(len(v)), nil
	case map[string]struct{}:
		return int64(len(v)), nil
	default:
		return 0, fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
	}
}

// --- SET operations ---

// SAdd adds members to a set.
func (s *MemoryStore) SAdd(key string, members ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var set map[string]struct{}
	rawSet, exists := s.data[key]
	if !exists {
		set = make(map[string]struct{})
		s.data[key] = set
	} else {
		var ok bool
		set, ok = rawSet.(map[string]struct{})
		if !ok {
			return fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
		}
	}

	for _, member := range members {
		set[fmt.Sprint(member)] = struct{}{}
	}
	return nil
}

// SPopN randomly removes and returns the given number of members from a set.
func (s *MemoryStore) SPopN(key string, count int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawSet, exists := s.data[key]
	if !exists {
		return []string{}, nil
	}

	set, ok := rawSet.(map[string]struct{})
	if !ok {
		return nil, fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
	}

	if count > int64(len(set)) {
		count = int64(len(set))
	}

	popped := make([]string, 0, count)
	for member := range set {
		if int64(len(popped)) >= count {
			break
		}
		popped = append(popped, member)
		delete(set, member)
	}

	return popped, nil
}

// SMembers returns every member of a set without removing any of them.
func (s *MemoryStore) SMembers(key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rawSet, exists := s.data[key]
	if !exists {
		return []string{}, nil
	}

	set, ok := rawSet.(map[string]struct{})
	if !ok {
		return nil, fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
	}

	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	return members, nil
}

// --- SORTED SET operations ---

// zset is a minimal sorted-set representation: a map for O(1) score lookups;
// ordered reads sort the members on each call (sortedZMembers). This mirrors how
// MemoryStore represents every other collection type as a plain Go value
// behind the `any`-typed data map.
type zset struct {
	scores map[string]float64
}

func newZSet() *zset {
	return &zset{scores: make(map[string]float64)}
}

func (s *MemoryStore) getZSet(key string, create bool) (*zset, error) {
	rawItem, exists := s.data[key]
	if exists && s.collectionExpired(key) {
		// Treat as absent; performCleanup evicts the entry asynchronously.
		// getZSet is called under both read and write locks, so it cannot
		// safely mutate s.data itself here.
		exists = false
	}
	if !exists {
		if !create {
			return nil, nil
		}
		z := newZSet()
		s.data[key] = z
		delete(s.expiry, key)
		return z, nil
	}
	z, ok := rawItem.(*zset)
	if !ok {
		return nil, fmt.Errorf("type mismatch: key '%s' holds a different data type", key)
	}
	return z, nil
}

func (s *MemoryStore) ZAdd(key string, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, err := s.getZSet(key, true)
	if err != nil {
		return err
	}
	z.scores[member] = score
	return nil
}

func (s *MemoryStore) ZIncrBy(key string, member string, incr float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, err := s.getZSet(key, true)
	if err != nil {
		return 0, err
	}
	z.scores[member] += incr
	return z.scores[member], nil
}

func (s *MemoryStore) ZScore(key string, member string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	z, err := s.getZSet(key, false)
	if err != nil {
		return 0, false, err
	}
	if z == nil {
		return 0, false, nil
	}
	score, ok := z.scores[member]
	return score, ok, nil
}

func (s *MemoryStore) ZRank(key string, member string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	z, err := s.getZSet(key, false)
	if err != nil {
		return 0, false, err
	}
	if z == nil {
		return 0, false, nil
	}
	if _, ok := z.scores[member]; !ok {
		return 0, false, nil
	}

	members := sortedZMembers(z)
	for i, m := range members {
		if m.Member == member {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (s *MemoryStore) ZCard(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	z, err := s.getZSet(key, false)
	if err != nil {
		return 0, err
	}
	if z == nil {
		return 0, nil
	}
	return int64(len(z.scores)), nil
}

func (s *MemoryStore) ZRangeByScore(key string, min, max float64) ([]ZMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	z, err := s.getZSet(key, false)
	if err != nil {
		return nil, err
	}
	if z == nil {
		return []ZMember{}, nil
	}

	result := make([]ZMember, 0, len(z.scores))
	for _, m := range sortedZMembers(z) {
		if m.Score >= min && m.Score <= max {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *MemoryStore) ZRevRangeByScore(key string, min, max float64) ([]ZMember, error) {
	members, err := s.ZRangeByScore(key, min, max)
	if err != nil {
		return nil, err
	}
	reversed := make([]ZMember, len(members))
	for i, m := range members {
		reversed[len(members)-1-i] = m
	}
	return reversed, nil
}

func (s *MemoryStore) ZRemRangeByScore(key string, min, max float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, err := s.getZSet(key, false)
	if err != nil {
		return 0, err
	}
	if z == nil {
		return 0, nil
	}

	var removed int64
	for member, score := range z.scores {
		if score >= min && score <= max {
			delete(z.scores, member)
			removed++
		}
	}
	return removed, nil
}

// sortedZMembers returns a zset's members ordered by score ascending, then
// by member name ascending to break ties deterministically.
func sortedZMembers(z *zset) []ZMember {
	members := make([]ZMember, 0, len(z.scores))
	for m, sc := range z.scores {
		members = append(members, ZMember{Member: m, Score: sc})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})
	return members
}

// --- Pub/Sub operations ---

// memorySubscription implements the Subscription interface for the in-memory store.
type memorySubscription struct {
	store     *MemoryStore
	channel   string
	msgChan   chan *Message
	closeOnce sync.Once // Ensure Close is idempotent to prevent double-close panics
}

// Channel returns the message channel for the subscription.
func (ms *memorySubscription) Channel() <-chan *Message {
	return ms.msgChan
}

// Close removes the subscription from the store.
// Uses sync.Once to ensure idempotent behavior and prevent double-close panics.
func (ms *memorySubscription) Close() error {
	ms.closeOnce.Do(func() {
		ms.store.muSubscribers.Lock()
		defer ms.store.muSubscribers.Unlock()

		if subs, ok := ms.store.subscribers[ms.channel]; ok {
			delete(subs, ms.msgChan)
			if len(subs) == 0 {
				delete(ms.store.subscribers, ms.channel)
			}
		}
		close(ms.msgChan)
	})
	return nil
}

// Publish sends a message to all subscribers of a channel.
// NOTE: This uses at-most-once delivery semantics. Messages may be dropped under backpressure
// to avoid blocking publishers and to prevent unbounded memory or goroutine growth.
// High-throughput benchmarks and acceptable drop thresholds should be validated by callers.
func (s *MemoryStore) Publish(channel string, message []byte) error {
	s.muSubscribers.RLock()
	defer s.muSubscribers.RUnlock()

	msg := &Message{
		Channel: channel,
		Payload: message,
	}

	if subs, ok := s.subscribers[channel]; ok {
		subscriberCount := len(subs)
		payloadSize := len(message)
		droppedCount := 0

		for subCh := range subs {
			select {
			case subCh <- msg:
			default:
				droppedCount++
			}
		}

		if droppedCount > 0 {
			s.droppedMessages.Add(int64(droppedCount))

			if logrus.IsLevelEnabled(logrus.DebugLevel) {
				logrus.WithFields(logrus.Fields{
					"channel":            channel,
					"subscribers":        subscriberCount,
					"dropped_this_call":  droppedCount,
					"payload_size_bytes": payloadSize,
					"dropped_total":      s.droppedMessages.Load(),
				}).Debug("Dropped messages due to full subscriber buffers")
			}
		}
	}
	return nil
}

// Subscribe listens for messages on a given channel.
func (s *MemoryStore) Subscribe(channel string) (Subscription, error) {
	s.muSubscribers.Lock()
	defer s.muSubscribers.Unlock()

	msgChan := make(chan *Message, 10) // Buffered channel

	if _, ok := s.subscribers[channel]; !ok {
		s.subscribers[channel] = make(map[chan *Message]struct{})
	}
	s.subscribers[channel][msgChan] = struct{}{}

	sub := &memorySubscription{
		store:   s,
		channel: channel,
		msgChan: msgChan,
	}

	return sub, nil
}

// Clear clears all data.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clear all data
	s.data = make(map[string]any)

	return nil
}

// DroppedMessages returns the total number of messages dropped due to subscriber backpressure.
// This is a lightweight global metric for observability and does not reset the internal counter.
// Per-channel drop statistics are intentionally not tracked here to keep the implementation simple
// and fast; callers can layer additional metrics if needed.
func (s *MemoryStore) DroppedMessages() int64 {
	return s.droppedMessages.Load()
}

// cleanupExpiredItems periodically removes expired items from the store.
// This prevents memory leaks from expired items that are never accessed again.
// Runs every 5 minutes to balance memory usage and CPU overhead.
func (s *MemoryStore) cleanupExpiredItems() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performCleanup()
		case <-s.stopCleanup:
			logrus.Debug("MemoryStore cleanup goroutine stopped")
			return
		}
	}
}

// performCleanup scans the store and removes expired items.
func (s *MemoryStore) performCleanup() {
	now := time.Now().UnixNano()
	expiredKeys := make([]string, 0, 100) // Pre-allocate for common case

	// First pass: identify expired keys (read lock)
	s.mu.RLock()
	for key, rawItem := range s.data {
		if item, ok := rawItem.(memoryStoreItem); ok {
			if item.expiresAt > 0 && now > item.expiresAt {
				expiredKeys = append(expiredKeys, key)
			}
		} else if s.collectionExpired(key) {
			expiredKeys = append(expiredKeys, key)
		}
	}
	s.mu.RUnlock()

	// Second pass: delete expired keys (write lock)
	if len(expiredKeys) > 0 {
		deletedCount := 0
		s.mu.Lock()
		for _, key := range expiredKeys {
			// Double-check expiration under write lock to avoid race conditions
			if rawItem, exists := s.data[key]; exists {
				if item, ok := rawItem.(memoryStoreItem); ok {
					if item.expiresAt > 0 && now > item.expiresAt {
						delete(s.data, key)
						deletedCount++
					}
				} else if s.collectionExpired(key) {
					delete(s.data, key)
					delete(s.expiry, key)
					deletedCount++
				}
			}
		}
		s.mu.Unlock()

		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logrus.Debugf("MemoryStore cleanup: removed %d expired items", deletedCount)
		}
	}
}
