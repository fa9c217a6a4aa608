package services

import (
	"bytes"
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/dbx"
	"github.com/dmitrijs2005/pxauth/internal/logging"
	"github.com/dmitrijs2005/pxauth/internal/server/config"
	"github.com/dmitrijs2005/pxauth/internal/server/mailer"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/authtokens"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/confirmations"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/totpsecrets"
	"github.com/dmitrijs2005/pxauth/internal/server/repositories/users"
)

// --- in-memory repositories ---

// memStore backs every fake repository. It ignores the DBTX it is handed:
// commit and rollback are asserted through sqlmock expectations instead.
type memStore struct {
	mu            sync.Mutex
	nextID        int64
	accounts      map[int64]*models.Account
	tokens        []*models.SessionToken
	confirmations []*models.Confirmation
	totp          map[int64]*models.TotpSecret
	touches       int

	// failWith, when set, is returned by every repository call.
	failWith error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[int64]*models.Account{},
		totp:     map[int64]*models.TotpSecret{},
	}
}

func (m *memStore) RunMigrations(context.Context, *sql.DB) error      { return nil }
func (m *memStore) Users(dbx.DBTX) users.Repository                 { return memUsers{m} }
func (m *memStore) AuthTokens(dbx.DBTX) authtokens.Repository       { return memTokens{m} }
func (m *memStore) Confirmations(dbx.DBTX) confirmations.Repository { return memConfirmations{m} }
func (m *memStore) TotpSecrets(dbx.DBTX) totpsecrets.Repository     { return memTotp{m} }

func (m *memStore) addAccount(a models.Account) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	m.accounts[a.ID] = &a
	return &a
}

func (m *memStore) account(id int64) models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.accounts[id]
}

func (m *memStore) confirmationsFor(accountID int64) []models.Confirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Confirmation
	for _, c := range m.confirmations {
		if c.AccountID == accountID {
			out = append(out, *c)
		}
	}
	return out
}

func (m *memStore) tokensFor(accountID int64) []models.SessionToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SessionToken
	for _, t := range m.tokens {
		if t.AccountID == accountID {
			out = append(out, *t)
		}
	}
	return out
}

type memUsers struct{ m *memStore }

func (r memUsers) Create(ctx context.Context, a *models.Account) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failWith != nil {
		return 0, r.m.failWith
	}
	for _, existing := range r.m.accounts {
		if existing.Email == a.Email {
			return 0, common.ErrorAlreadyExists
		}
	}
	r.m.nextID++
	c := *a
	c.ID = r.m.nextID
	r.m.accounts[c.ID] = &c
	return c.ID, nil
}

func (r memUsers) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failWith != nil {
		return nil, r.m.failWith
	}
	for _, a := range r.m.accounts {
		if a.Email == email {
			c := *a
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failWith != nil {
		return nil, r.m.failWith
	}
	a, ok := r.m.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *a
	return &c, nil
}

func (r memUsers) UpdateRegistration(ctx context.Context, id int64, name, hash string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.Name, a.PasswordHash, a.CreationDate = name, hash, at
	return nil
}

func (r memUsers) UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.Status = status
	return nil
}

type memTokens struct{ m *memStore }

func (r memTokens) Insert(ctx context.Context, t *models.SessionToken) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failWith != nil {
		return false, r.m.failWith
	}
	for _, existing := range r.m.tokens {
		if bytes.Equal(existing.Token, t.Token) {
			return false, nil
		}
	}
	c := *t
	r.m.tokens = append(r.m.tokens, &c)
	return true, nil
}

func (r memTokens) Find(ctx context.Context, accountID int64, token []byte) (*models.SessionToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.tokens {
		if t.AccountID == accountID && bytes.Equal(t.Token, token) {
			c := *t
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memTokens) Touch(ctx context.Context, accountID int64, token []byte, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failWith != nil {
		return r.m.failWith
	}
	for _, t := range r.m.tokens {
		if t.AccountID == accountID && bytes.Equal(t.Token, token) {
			t.LastUseDate = at
			r.m.touches++
		}
	}
	return nil
}

func (r memTokens) DeleteAllForAccount(ctx context.Context, accountID int64) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var kept []*models.SessionToken
	var n int64
	for _, t := range r.m.tokens {
		if t.AccountID == accountID {
			n++
			continue
		}
		kept = append(kept, t)
	}
	r.m.tokens = kept
	return n, nil
}

func (r memTokens) ExistsForDevice(ctx context.Context, accountID int64, device string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.tokens {
		if t.AccountID == accountID && t.DeviceString == device {
			return true, nil
		}
	}
	return false, nil
}

type memConfirmations struct{ m *memStore }

func (r memConfirmations) Insert(ctx context.Context, c *models.Confirmation) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failWith != nil {
		return false, r.m.failWith
	}
	for _, e := range r.m.confirmations {
		if e.AccountID == c.AccountID && e.Action == c.Action &&
			(bytes.Equal(e.Token, c.Token) || bytes.Equal(e.CodeToken, c.CodeToken)) {
			return false, nil
		}
	}
	cp := *c
	cp.Used, cp.CodeTrials = false, 0
	r.m.confirmations = append(r.m.confirmations, &cp)
	return true, nil
}

func (r memConfirmations) find(accountID int64, action models.ConfirmationAction, match func(*models.Confirmation) bool) (*models.Confirmation, error) {
	for _, c := range r.m.confirmations {
		if c.AccountID == accountID && c.Action == action && match(c) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memConfirmations) FindByCodeToken(ctx context.Context, accountID int64, action models.ConfirmationAction, codeToken []byte, code uint32) (*models.Confirmation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.find(accountID, action, func(c *models.Confirmation) bool {
		return bytes.Equal(c.CodeToken, codeToken) && c.Code == code
	})
}

func (r memConfirmations) FindByToken(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (*models.Confirmation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.find(accountID, action, func(c *models.Confirmation) bool { return bytes.Equal(c.Token, token) })
}

func (r memConfirmations) LockByCodeToken(ctx context.Context, accountID int64, action models.ConfirmationAction, codeToken []byte) (*models.Confirmation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failWith != nil {
		return nil, r.m.failWith
	}
	return r.find(accountID, action, func(c *models.Confirmation) bool { return bytes.Equal(c.CodeToken, codeToken) })
}

func (r memConfirmations) LockByToken(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (*models.Confirmation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failWith != nil {
		return nil, r.m.failWith
	}
	return r.find(accountID, action, func(c *models.Confirmation) bool { return bytes.Equal(c.Token, token) })
}

func (r memConfirmations) row(accountID int64, action models.ConfirmationAction, token []byte) *models.Confirmation {
	for _, c := range r.m.confirmations {
		if c.AccountID == accountID && c.Action == action && bytes.Equal(c.Token, token) {
			return c
		}
	}
	return nil
}

func (r memConfirmations) IncrementTrials(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := r.row(accountID, action, token)
	if c == nil {
		return 0, common.ErrorNotFound
	}
	c.CodeTrials++
	return c.CodeTrials, nil
}

func (r memConfirmations) MarkUsed(ctx context.Context, accountID int64, action models.ConfirmationAction, token []byte) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := r.row(accountID, action, token)
	if c == nil || c.Used {
		return false, nil
	}
	c.Used = true
	return true, nil
}

func (r memConfirmations) InvalidateAll(ctx context.Context, accountID int64, action models.ConfirmationAction) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, c := range r.m.confirmations {
		if c.AccountID == accountID && c.Action == action && !c.Used {
			c.Used = true
			n++
		}
	}
	return n, nil
}

func (r memConfirmations) DeleteAllForAccount(ctx context.Context, accountID int64) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var kept []*models.Confirmation
	var n int64
	for _, c := range r.m.confirmations {
		if c.AccountID == accountID {
			n++
			continue
		}
		kept = append(kept, c)
	}
	r.m.confirmations = kept
	return n, nil
}

type memTotp struct{ m *memStore }

func (r memTotp) Get(ctx context.Context, accountID int64) (*models.TotpSecret, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.totp[accountID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *s
	return &c, nil
}

func (r memTotp) Upsert(ctx context.Context, s *models.TotpSecret) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := *s
	r.m.totp[s.AccountID] = &c
	return nil
}

// --- generator, hasher, mailer, logger, clock ---

// seqGenerator fills each token with an incrementing byte, so consecutive
// tokens differ and tests can predict them.
type seqGenerator struct {
	mu     sync.Mutex
	n      byte
	digits []uint32
}

func (g *seqGenerator) RandomBytes(n int) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return bytes.Repeat([]byte{g.n}, n)
}

func (g *seqGenerator) RandomDigits(int) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.digits) == 0 {
		return 1234
	}
	d := g.digits[0]
	g.digits = g.digits[1:]
	return d
}

// constGenerator always draws the same values.
type constGenerator struct{ b byte }

func (g constGenerator) RandomBytes(n int) []byte { return bytes.Repeat([]byte{g.b}, n) }
func (g constGenerator) RandomDigits(int) uint32  { return 42 }

type plainHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *plainHasher) Hash(p string) (string, error) { return "h:" + p, nil }

func (h *plainHasher) Verify(p, hash string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return hash == "h:"+p
}

func (h *plainHasher) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

type recordingMailer struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (r *recordingMailer) SendConfirmation(_ context.Context, msg mailer.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingMailer) sent() []mailer.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mailer.Message(nil), r.msgs...)
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (l nopLogger) With(...any) logging.Logger          { return l }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- service fixture ---

type fixture struct {
	svc    *AuthService
	store  *memStore
	mock   sqlmock.Sqlmock
	mail   *recordingMailer
	hasher *plainHasher
	clock  *fakeClock
	gen    *seqGenerator
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

func newFixture(t *testing.T, tweak func(*config.Config)) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.FrontendHost = "https://app.example.com/"
	if tweak != nil {
		tweak(cfg)
	}

	db, mock := newSQLMockDB(t)
	f := &fixture{
		store:  newMemStore(),
		mock:   mock,
		mail:   &recordingMailer{},
		hasher: &plainHasher{},
		clock:  newFakeClock(),
		gen:    &seqGenerator{},
	}
	f.svc = newAuthService(db, f.store, cfg, f.gen, f.hasher, f.mail, nopLogger{})
	f.svc.setClock(f.clock.Now)

	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sql expectations: %v", err)
		}
	})
	return f
}

func (f *fixture) expectCommit() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func (f *fixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}
