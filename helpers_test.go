package sapling

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Shared test types and constructors used across test files.

func mustRegister(t testing.TB, r *Registry, constructor any, lc Lifecycle, opts ...Option) {
	t.Helper()
	require.NoError(t, r.Register(constructor, lc, opts...))
}

func mustRegisterFactory(t testing.TB, r *Registry, lc Lifecycle, factory any, opts ...Option) {
	t.Helper()
	require.NoError(t, r.RegisterWithFactory(lc, factory, opts...))
}

func mustProvider(t testing.TB, r *Registry, opts ...ProviderOption) *Provider {
	t.Helper()
	p, err := r.CreateProvider(opts...)
	require.NoError(t, err)
	return p
}

type testLogger struct{ Prefix string }
type testConfig struct{ DSN string }

type testDatabase struct {
	Config *testConfig
	Logger *testLogger
}

type testUserRepo struct {
	DB     *testDatabase
	Logger *testLogger
}

type testService interface {
	Name() string
}

type testUserService struct {
	Repo   *testUserRepo
	Logger *testLogger
}

func (s *testUserService) Name() string { return "user" }

type testOrderService struct{ Logger *testLogger }

func (s *testOrderService) Name() string { return "order" }

type testCircA struct{ B *testCircB }
type testCircB struct{ C *testCircC }
type testCircC struct{ A *testCircA }

func newTestLogger() *testLogger           { return &testLogger{Prefix: "app"} }
func newTestConfig() *testConfig           { return &testConfig{DSN: "postgres://localhost"} }
func newTestCircA(b *testCircB) *testCircA { return &testCircA{B: b} }
func newTestCircB(c *testCircC) *testCircB { return &testCircB{C: c} }
func newTestCircC(a *testCircA) *testCircC { return &testCircC{A: a} }

func newTestDatabase(cfg *testConfig, log *testLogger) *testDatabase {
	return &testDatabase{Config: cfg, Logger: log}
}

func newTestUserRepo(db *testDatabase, log *testLogger) *testUserRepo {
	return &testUserRepo{DB: db, Logger: log}
}

func newTestUserService(repo *testUserRepo, log *testLogger) *testUserService {
	return &testUserService{Repo: repo, Logger: log}
}

func newTestOrderService(log *testLogger) *testOrderService {
	return &testOrderService{Logger: log}
}

// closeLog records close calls from any goroutine.
type closeLog struct {
	mu    sync.Mutex
	names []string
}

func (l *closeLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *closeLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

// testClosable implements io.Closer and records when it is closed.
type testClosable struct {
	Name   string
	Closed bool
	Log    *closeLog
}

func (c *testClosable) Close() error {
	c.Closed = true
	if c.Log != nil {
		c.Log.add(c.Name)
	}
	return nil
}

// testFailCloser implements io.Closer but returns an error.
type testFailCloser struct{}

func (f *testFailCloser) Close() error {
	return errors.New("close failed")
}

// Closable chain used by ownership tests: handler -> repo -> conn.
type testConn struct{ testClosable }
type testRepo struct {
	testClosable
	Conn *testConn
}
type testHandler struct {
	testClosable
	Repo *testRepo
}

func registerChain(t testing.TB, r *Registry, log *closeLog, handler, repo, conn Lifecycle) {
	t.Helper()
	mustRegister(t, r, func() *testConn {
		return &testConn{testClosable{Name: "conn", Log: log}}
	}, conn)
	mustRegister(t, r, func(c *testConn) *testRepo {
		return &testRepo{testClosable: testClosable{Name: "repo", Log: log}, Conn: c}
	}, repo)
	mustRegister(t, r, func(rp *testRepo) *testHandler {
		return &testHandler{testClosable: testClosable{Name: "handler", Log: log}, Repo: rp}
	}, handler)
}
