package baas

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/keithlinneman/ephemera/internal/xerrors"
)

type account struct {
	user User
	hash []byte
}

// Memory is an in-process backend implementing Auth and Store.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*account // by email
	sessions map[string]Session  // by token
	tables   map[string][]Row

	now        func() time.Time
	sessionTTL time.Duration
	cost       int
}

type MemoryOption func(*Memory)

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) MemoryOption {
	return func(m *Memory) {
		m.cost = cost
	}
}

func WithSessionTTL(d time.Duration) MemoryOption {
	return func(m *Memory) {
		if d > 0 {
			m.sessionTTL = d
		}
	}
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		accounts:   make(map[string]*account),
		sessions:   make(map[string]Session),
		tables:     make(map[string][]Row),
		now:        time.Now,
		sessionTTL: 24 * time.Hour,
		cost:       bcrypt.DefaultCost,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) SignUp(ctx context.Context, p SignUpParams) (Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), m.cost)
	if err != nil {
		return Session{}, xerrors.Wrap(err, "hash password")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[p.Email]; ok {
		return Session{}, ErrEmailTaken
	}
	for _, a := range m.accounts {
		if a.user.Username == p.Username {
			return Session{}, ErrUsernameTaken
		}
	}

	u := User{
		ID:          uuid.NewString(),
		Email:       p.Email,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		CreatedAt:   m.now().UTC(),
	}
	m.accounts[p.Email] = &account{user: u, hash: hash}
	return m.newSessionLocked(u.ID)
}

func (m *Memory) SignIn(ctx context.Context, email, password string) (Session, error) {
	m.mu.RLock()
	a, ok := m.accounts[email]
	m.mu.RUnlock()
	if !ok {
		// spend the same work as a real comparison so unknown emails are not faster
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newSessionLocked(a.user.ID)
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)

func (m *Memory) newSessionLocked(userID string) (Session, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return Session{}, xerrors.Wrap(err, "generate session token")
	}
	s := Session{
		Token:     base64.RawURLEncoding.EncodeToString(b[:]),
		UserID:    userID,
		ExpiresAt: m.now().Add(m.sessionTTL).UTC(),
	}
	m.sessions[s.Token] = s
	return s, nil
}

func (m *Memory) SignOut(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return ErrUnauthenticated
	}
	delete(m.sessions, token)
	return nil
}

func (m *Memory) UserForToken(ctx context.Context, token string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok || !m.now().Before(s.ExpiresAt) {
		return User{}, ErrUnauthenticated
	}
	for _, a := range m.accounts {
		if a.user.ID == s.UserID {
			return a.user, nil
		}
	}
	return User{}, ErrUnauthenticated
}

func (m *Memory) UserByUsername(ctx context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.user.Username == username {
			return a.user, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *Memory) Insert(ctx context.Context, table string, row Row) (Row, error) {
	stored := make(Row, len(row)+2)
	for k, v := range row {
		stored[k] = v
	}
	if id, _ := stored["id"].(string); id == "" {
		stored["id"] = uuid.NewString()
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = m.now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.tables[table] {
		if r["id"] == stored["id"] {
			return nil, xerrors.Newf("duplicate key value violates unique constraint on %s.id", table)
		}
	}
	m.tables[table] = append(m.tables[table], stored)
	return copyRow(stored), nil
}

func (m *Memory) Update(ctx context.Context, table string, f Filter, patch Row) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.tables[table] {
		if !f.matches(r) {
			continue
		}
		for k, v := range patch {
			if k == "id" {
				continue
			}
			r[k] = v
		}
		n++
	}
	return n, nil
}

func (m *Memory) Delete(ctx context.Context, table string, f Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[table]
	kept := rows[:0]
	for _, r := range rows {
		if !f.matches(r) {
			kept = append(kept, r)
		}
	}
	n := len(rows) - len(kept)
	clear(rows[len(kept):])
	m.tables[table] = kept
	return n, nil
}

func (m *Memory) Select(ctx context.Context, table string, f Filter) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Row
	for _, r := range m.tables[table] {
		if f.matches(r) {
			out = append(out, copyRow(r))
		}
	}
	return out, nil
}

func (f Filter) matches(r Row) bool {
	for k, want := range f {
		if fmt.Sprint(r[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type memoryBlob struct {
	data        []byte
	contentType string
}

// MemoryBlobs keeps uploaded objects in memory.
type MemoryBlobs struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string]memoryBlob)}
}

func (b *MemoryBlobs) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return xerrors.Wrapf(err, "read blob %s", key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blobs[key]; ok {
		return xerrors.Newf("blob %s already exists", key)
	}
	b.blobs[key] = memoryBlob{data: data, contentType: contentType}
	return nil
}

func (b *MemoryBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

// Get returns a stored object and its content type.
func (b *MemoryBlobs) Get(key string) ([]byte, string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	blob, ok := b.blobs[key]
	return blob.data, blob.contentType, ok
}

// Keys lists stored keys with the given prefix.
func (b *MemoryBlobs) Keys(prefix string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	for k := range b.blobs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}
