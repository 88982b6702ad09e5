package memory

import (
	"context"
	"sort"
	"sync"

	"booking/internal/repository"
)

// Lock key namespaces. Every transition locks the keys of the entities it
// reads and writes, e.g. BookKey("TB001") and MemberKey("M001") for a checkout.
const (
	bookPrefix   = "book:"
	memberPrefix = "member:"
	ridePrefix   = "ride:"
	riderPrefix  = "rider:"
	driverPrefix = "driver:"
)

func BookKey(barcode string) string { return bookPrefix + barcode }
func MemberKey(id string) string    { return memberPrefix + id }
func RideKey(id string) string      { return ridePrefix + id }
func RiderKey(id string) string     { return riderPrefix + id }
func DriverKey(id string) string    { return driverPrefix + id }

// keyLock is a one-slot semaphore plus the number of goroutines holding or
// waiting for it. The entry is dropped when refs reaches zero, so the map
// only ever holds keys that are in use.
type keyLock struct {
	sem  chan struct{}
	refs int
}

// LockManager provides per-key mutual exclusion for the services. Two
// checkouts of different books never wait on each other; two operations on
// the same driver always do.
//
// Go Learning Note (Channels as Mutexes):
// A buffered channel of capacity 1 behaves like a mutex: sending acquires,
// receiving releases. Unlike sync.Mutex it can sit in a select next to
// ctx.Done(), so a caller whose context is cancelled stops waiting instead
// of blocking forever.
//
// Go Learning Note (Lock Ordering):
// Deadlock needs two goroutines each holding a lock the other wants. LockAll
// always acquires keys in sorted order, so any two callers contend on their
// shared keys in the same sequence and one of them simply waits.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

var _ repository.Locker = (*LockManager)(nil)

func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*keyLock),
	}
}

// Lock acquires a single key, waiting until it is free or ctx is done.
func (lm *LockManager) Lock(ctx context.Context, key string) error {
	lm.mu.Lock()
	kl, exists := lm.locks[key]
	if !exists {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		lm.locks[key] = kl
	}
	kl.refs++
	lm.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		lm.release(key, kl)
		return ctx.Err()
	}
}

// Unlock releases a key acquired with Lock.
func (lm *LockManager) Unlock(key string) {
	lm.mu.Lock()
	kl, exists := lm.locks[key]
	lm.mu.Unlock()
	if !exists {
		return
	}
	<-kl.sem
	lm.release(key, kl)
}

func (lm *LockManager) release(key string, kl *keyLock) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(lm.locks, key)
	}
}

// LockAll acquires every key in a global order. Duplicates and empty keys
// are ignored. On failure nothing stays locked.
func (lm *LockManager) LockAll(ctx context.Context, keys ...string) (func(), error) {
	ordered := normalizeKeys(keys)

	acquired := make([]string, 0, len(ordered))
	unlock := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			lm.Unlock(acquired[i])
		}
	}
	for _, k := range ordered {
		if err := lm.Lock(ctx, k); err != nil {
			unlock()
			return func() {}, err
		}
		acquired = append(acquired, k)
	}

	var once sync.Once
	return func() { once.Do(unlock) }, nil
}

// IsLocked reports whether key is currently held.
func (lm *LockManager) IsLocked(key string) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	kl, exists := lm.locks[key]
	return exists && len(kl.sem) == 1
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
