package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo holds users, sign-in challenges and sessions in process memory.
// Sessions are transient by design; a restart simply signs everyone out.
type MemoryRepo struct {
	mu           sync.Mutex
	usersByEmail map[string]User
	usersByID    map[string]User
	challenges   map[string]CodeChallenge
	sessions     map[string]Session // keyed by token hash
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		usersByEmail: map[string]User{},
		usersByID:    map[string]User{},
		challenges:   map[string]CodeChallenge{},
		sessions:     map[string]Session{},
	}
}

func (r *MemoryRepo) PutChallenge(ch CodeChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.challenges[ch.Email] = ch
	return nil
}

func (r *MemoryRepo) GetChallenge(email string) (CodeChallenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.challenges[email]
	return ch, ok
}

func (r *MemoryRepo) DeleteChallenge(email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.challenges, email)
	return nil
}

func (r *MemoryRepo) GetOrCreateUser(email string, now time.Time) (User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.usersByEmail[email]; ok {
		return u, false, nil
	}
	u := User{ID: "user_" + uuid.NewString(), Email: email, CreatedAt: now}
	r.usersByEmail[email] = u
	r.usersByID[u.ID] = u
	return u, true, nil
}

func (r *MemoryRepo) GetUserByID(id string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.usersByID[id]
	return u, ok
}

func (r *MemoryRepo) CreateSession(s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.TokenHash] = s
	return nil
}

func (r *MemoryRepo) GetSessionByTokenHash(hash string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[hash]
	return s, ok
}

func (r *MemoryRepo) DeleteSessionByTokenHash(hash string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[hash]
	delete(r.sessions, hash)
	return s, ok
}

func (r *MemoryRepo) TouchSession(hash string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[hash]; ok {
		s.LastSeen = now
		r.sessions[hash] = s
	}
}
