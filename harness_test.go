package cutover

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/meidoworks/nekoq-cutover/client"
	"github.com/meidoworks/nekoq-cutover/internal/fakemanager"
)

const (
	testExtract  = "EXB2A23A"
	testReplicat = "RPB2A23A"
	testUser     = "oggadmin"
	testPass     = "secret"
)

// fakeClock advances on Sleep, so a whole run completes instantly.
type fakeClock struct {
	now   time.Time
	slept time.Duration
	lock  sync.Mutex

	// onSleep runs after every Sleep with the number of sleeps so far.
	onSleep func(n int)
	sleeps  int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.lock.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
	n, hook := c.sleeps, c.onSleep
	c.lock.Unlock()
	if hook != nil {
		hook(n)
	}
}

func (c *fakeClock) Slept() time.Duration {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.slept
}

type harness struct {
	manager *fakemanager.Manager
	client  *client.ManagerClient
	clock   *fakeClock
	log     *logrus.Logger
	hook    *logtest.Hook
}

func newHarness(t *testing.T, units ...fakemanager.Unit) *harness {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	m := fakemanager.New("127.0.0.1:0", testUser, testPass)
	m.SetLogger(logger)
	for _, u := range units {
		m.AddUnit(u)
	}
	require.NoError(t, m.Start())
	t.Cleanup(func() {
		_ = m.Stop()
	})

	c := client.NewManagerClient(client.ManagerConfig{
		BaseURL:  m.URL(),
		Username: testUser,
		Password: testPass,
		Timeout:  5 * time.Second,
	}, logger)

	return &harness{
		manager: m,
		client:  c,
		clock:   newFakeClock(),
		log:     logger,
		hook:    hook,
	}
}

func (h *harness) orchestrator(opts Options) *Orchestrator {
	if opts.Extract.Name == "" {
		opts.Extract = Extract(testExtract)
	}
	if opts.Replicat.Name == "" {
		opts.Replicat = Replicat(testReplicat)
	}
	opts.Clock = h.clock
	opts.Log = h.log
	return NewOrchestrator(h.client, opts)
}

func (h *harness) messages() []string {
	var out []string
	for _, e := range h.hook.AllEntries() {
		out = append(out, e.Message)
	}
	return out
}

func extractUnit(status string) fakemanager.Unit {
	return fakemanager.Unit{Collection: fakemanager.CollectionExtracts, Name: testExtract, Status: status}
}

func replicatUnit(status string) fakemanager.Unit {
	return fakemanager.Unit{Collection: fakemanager.CollectionReplicats, Name: testReplicat, Status: status}
}

// mutation is a compact view of a PATCH received by the manager.
type mutation struct {
	path  string
	begin string
	state string
}

func mutations(m *fakemanager.Manager) []mutation {
	var out []mutation
	for _, r := range m.Mutations() {
		out = append(out, mutation{path: r.Path, begin: r.Body["begin"], state: r.Body["status"]})
	}
	return out
}

var (
	extractPath  = Extract(testExtract).Endpoint()
	replicatPath = Replicat(testReplicat).Endpoint()
)
