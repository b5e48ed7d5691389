package identity

import "sync"

// Store is the reactive holder of the two session slices.
//
// It replaces the source's two parallel "who am I" slices with a single
// derived sum type: mutations update one slice, and every subscriber
// observes the freshly derived Identity.
//
// Concurrency guarantees:
//   - SetUser/SetCompany/ClearUser/ClearCompany are safe under concurrent Current.
//   - Subscribers are invoked synchronously, outside the store lock, in
//     registration order; a slow subscriber delays later ones but cannot
//     deadlock the store.
type Store struct {
	mu      sync.RWMutex
	user    Session
	company Session

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(Identity)
}

// NewStore constructs an empty session store (identity none).
func NewStore() *Store {
	return &Store{subs: make(map[int]func(Identity))}
}

// Current returns the derived identity for the present slices.
func (s *Store) Current() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Derive(s.user, s.company)
}

// SetUser installs the user session slice.
func (s *Store) SetUser(sess Session) {
	s.mutate(func() { s.user = sess })
}

// SetCompany installs the company session slice.
func (s *Store) SetCompany(sess Session) {
	s.mutate(func() { s.company = sess })
}

// ClearUser drops the user session slice.
func (s *Store) ClearUser() {
	s.mutate(func() { s.user = Session{} })
}

// ClearCompany drops the company session slice.
func (s *Store) ClearCompany() {
	s.mutate(func() { s.company = Session{} })
}

// Subscribe registers fn to observe every derived identity change.
// The returned cancel func is idempotent. fn is not called for mutations
// that leave the derived identity unchanged.
func (s *Store) Subscribe(fn func(Identity)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) mutate(apply func()) {
	s.mu.Lock()
	before := Derive(s.user, s.company)
	apply()
	after := Derive(s.user, s.company)
	s.mu.Unlock()

	if before.Equal(after) {
		return
	}

	s.subMu.Lock()
	fns := make([]func(Identity), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(after)
	}
}
