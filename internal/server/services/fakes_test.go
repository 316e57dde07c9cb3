package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"

	"github.com/sparkbridge/server/internal/common"
	"github.com/sparkbridge/server/internal/dbx"
	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/config"
	"github.com/sparkbridge/server/internal/server/models"
	profilesrepo "github.com/sparkbridge/server/internal/server/repositories/profiles"
	refreshtokensrepo "github.com/sparkbridge/server/internal/server/repositories/refreshtokens"
	usersrepo "github.com/sparkbridge/server/internal/server/repositories/users"
)

// store is an in-memory stand-in for the three tables. The sqlmock DB only
// sees BEGIN/COMMIT/ROLLBACK; rows live here.
//
// Transactions run one at a time (txMu is held from BEGIN to COMMIT or
// ROLLBACK, like a row lock held to the end of a transaction). Writes made
// through a *sql.Tx are journaled and undone on ROLLBACK.
type store struct {
	mu       sync.Mutex
	seq      int
	users    map[string]*models.User // by email
	profiles map[string]*models.Profile
	tokens   map[string]*models.RefreshToken

	txMu    sync.Mutex
	journal []func()

	// verifyGate, when set, holds every FindActive caller until all of
	// them have arrived.
	verifyGate *sync.WaitGroup

	// injected failures
	usersGetErr      error
	userCreateErr    error
	profileCreateErr error
	profileGetErr    error
	profileAdminErr  error
	tokenCreateErr   error
	tokenDeleteErr   error
	// deleteMisses makes Delete report zero rows, as if a concurrent
	// rotation got there first.
	deleteMisses bool
}

func newStore() *store {
	return &store{
		users:    map[string]*models.User{},
		profiles: map[string]*models.Profile{},
		tokens:   map[string]*models.RefreshToken{},
	}
}

// undoable records how to revert a write made inside a transaction.
// Callers hold s.mu.
func (s *store) undoable(inTx bool, undo func()) {
	if inTx {
		s.journal = append(s.journal, undo)
	}
}

func (s *store) endTx(commit bool) {
	s.mu.Lock()
	if !commit {
		for i := len(s.journal) - 1; i >= 0; i-- {
			s.journal[i]()
		}
	}
	s.journal = nil
	s.mu.Unlock()
	s.txMu.Unlock()
}

func (s *store) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

type fakeUsersRepo struct {
	s    *store
	inTx bool
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.userCreateErr != nil {
		return nil, f.s.userCreateErr
	}
	if _, ok := f.s.users[u.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	f.s.seq++
	u.ID = fmt.Sprintf("u-%d", f.s.seq)
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	cp := *u
	f.s.users[u.Email] = &cp
	f.s.undoable(f.inTx, func() { delete(f.s.users, cp.Email) })
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.usersGetErr != nil {
		return nil, f.s.usersGetErr
	}
	u, ok := f.s.users[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.usersGetErr != nil {
		return nil, f.s.usersGetErr
	}
	for _, u := range f.s.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

type fakeProfilesRepo struct {
	s    *store
	inTx bool
}

func (f *fakeProfilesRepo) Create(_ context.Context, p *models.Profile) (*models.Profile, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.profileCreateErr != nil {
		return nil, f.s.profileCreateErr
	}
	p.IsAdmin = false
	cp := *p
	f.s.profiles[p.ID] = &cp
	f.s.undoable(f.inTx, func() { delete(f.s.profiles, cp.ID) })
	return p, nil
}

func (f *fakeProfilesRepo) GetByID(_ context.Context, id string) (*models.Profile, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.profileGetErr != nil {
		return nil, f.s.profileGetErr
	}
	p, ok := f.s.profiles[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfilesRepo) SetAdmin(_ context.Context, id string, isAdmin bool) (*models.Profile, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.profileAdminErr != nil {
		return nil, f.s.profileAdminErr
	}
	p, ok := f.s.profiles[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	prev := p.IsAdmin
	p.IsAdmin = isAdmin
	f.s.undoable(f.inTx, func() { p.IsAdmin = prev })
	cp := *p
	return &cp, nil
}

type fakeRefreshRepo struct {
	s    *store
	inTx bool
}

func (f *fakeRefreshRepo) Create(_ context.Context, userID, token string, expiresAt time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.tokenCreateErr != nil {
		return f.s.tokenCreateErr
	}
	if _, ok := f.s.tokens[token]; ok {
		return common.ErrorAlreadyExists
	}
	f.s.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, ExpiresAt: expiresAt, CreatedAt: time.Now()}
	f.s.undoable(f.inTx, func() { delete(f.s.tokens, token) })
	return nil
}

func (f *fakeRefreshRepo) FindActive(_ context.Context, token string) (*models.RefreshToken, error) {
	if g := f.s.verifyGate; g != nil {
		g.Done()
		g.Wait()
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	rt, ok := f.s.tokens[token]
	if !ok || !rt.ExpiresAt.After(time.Now()) {
		return nil, common.ErrorNotFound
	}
	cp := *rt
	return &cp, nil
}

func (f *fakeRefreshRepo) Delete(_ context.Context, token string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.tokenDeleteErr != nil {
		return 0, f.s.tokenDeleteErr
	}
	if f.s.deleteMisses {
		return 0, nil
	}
	rt, ok := f.s.tokens[token]
	if !ok {
		return 0, nil
	}
	delete(f.s.tokens, token)
	f.s.undoable(f.inTx, func() { f.s.tokens[token] = rt })
	return 1, nil
}

func (f *fakeRefreshRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for k, rt := range f.s.tokens {
		if rt.UserID == userID {
			delete(f.s.tokens, k)
			f.s.undoable(f.inTx, func() { f.s.tokens[k] = rt })
			n++
		}
	}
	return n, nil
}

func (f *fakeRefreshRepo) DeleteExpired(_ context.Context) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for k, rt := range f.s.tokens {
		if !rt.ExpiresAt.After(time.Now()) {
			delete(f.s.tokens, k)
			n++
		}
	}
	return n, nil
}

func (s *store) tokensOf(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rt := range s.tokens {
		if rt.UserID == userID {
			n++
		}
	}
	return n
}

type fakeRepoManager struct{ s *store }

func inTx(db dbx.DBTX) bool {
	_, ok := db.(*sql.Tx)
	return ok
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository {
	return &fakeUsersRepo{m.s, inTx(db)}
}
func (m *fakeRepoManager) Profiles(db dbx.DBTX) profilesrepo.Repository {
	return &fakeProfilesRepo{m.s, inTx(db)}
}
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository {
	return &fakeRefreshRepo{m.s, inTx(db)}
}

// txConnector hands out sqlmock connections whose transactions report
// their outcome to the store.
type txConnector struct {
	dsn string
	drv driver.Driver
	st  *store
}

func (c txConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.drv.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return txConn{conn, c.st}, nil
}

func (c txConnector) Driver() driver.Driver { return c.drv }

type txConn struct {
	driver.Conn
	st *store
}

func (c txConn) Begin() (driver.Tx, error) {
	c.st.txMu.Lock()
	tx, err := c.Conn.Begin()
	if err != nil {
		c.st.txMu.Unlock()
		return nil, err
	}
	return &storeTx{Tx: tx, st: c.st}, nil
}

type storeTx struct {
	driver.Tx
	st *store
}

func (t *storeTx) Commit() error {
	err := t.Tx.Commit()
	t.st.endTx(err == nil)
	return err
}

func (t *storeTx) Rollback() error {
	err := t.Tx.Rollback()
	t.st.endTx(false)
	return err
}

// --- helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AccessSecret:    "access-secret-for-tests-0123456789",
		RefreshSecret:   "refresh-secret-for-tests-0123456789",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		BcryptCost:      bcrypt.MinCost,
	}
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var mockSeq atomic.Int64

// newStoreDB returns a DB whose BEGIN/COMMIT/ROLLBACK are checked by sqlmock
// and whose transaction outcome is applied to st.
func newStoreDB(t *testing.T, st *store) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	dsn := fmt.Sprintf("services_%d", mockSeq.Add(1))
	raw, mock, err := sqlmock.NewWithDSN(dsn)
	if err != nil {
		t.Fatalf("sqlmock.NewWithDSN error: %v", err)
	}
	db := sql.OpenDB(txConnector{dsn: dsn, drv: raw.Driver(), st: st})
	t.Cleanup(func() {
		_ = db.Close()
		_ = raw.Close()
	})
	return db, mock
}

func newAuthService(t *testing.T) (*AuthService, *store, sqlmock.Sqlmock) {
	t.Helper()
	st := newStore()
	db, mock := newStoreDB(t, st)
	return NewAuthService(db, &fakeRepoManager{st}, testConfig(), logging.Nop{}), st, mock
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
