package littlewebserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepExpiredRemovesStaleSessions(t *testing.T) {
	m := NewInMemorySessionManager(60)
	s := &Session{ID: "stale"}
	require.NoError(t, m.Save(s))

	m.mu.Lock()
	m.sessions["stale"].LastTouched = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	m.sweepExpired()

	_, ok := m.Load("stale")
	assert.False(t, ok)
}

func TestSweepExpiredKeepsFreshSessions(t *testing.T) {
	m := NewInMemorySessionManager(60)
	s := &Session{ID: "fresh"}
	require.NoError(t, m.Save(s))

	m.sweepExpired()

	_, ok := m.Load("fresh")
	assert.True(t, ok)
}

func TestSweepExpiredNoopWhenTimeoutDisabled(t *testing.T) {
	m := NewInMemorySessionManager(0)
	s := &Session{ID: "x"}
	require.NoError(t, m.Save(s))

	m.mu.Lock()
	m.sessions["x"].LastTouched = time.Now().Add(-24 * time.Hour)
	m.mu.Unlock()

	m.sweepExpired()

	m.mu.Lock()
	_, ok := m.sessions["x"]
	m.mu.Unlock()
	assert.True(t, ok)
}

func TestServerStartsMaintenanceLoopOnListenAndServe(t *testing.T) {
	cfg := NewConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.SessionSweepInterval = 10 * time.Millisecond
	s, err := NewServer(cfg)
	require.NoError(t, err)

	expired := &Session{ID: "about-to-expire"}
	require.NoError(t, s.Sessions.Save(expired))
	mgr := s.Sessions.(*InMemorySessionManager)
	mgr.mu.Lock()
	mgr.sessions["about-to-expire"].LastTouched = time.Now().Add(-time.Hour)
	mgr.mu.Unlock()
	mgr.timeout = 1

	addr := startTestServer(t, s)
	_ = addr

	deadline := time.Now().Add(time.Second)
	var ok bool
	for time.Now().Before(deadline) {
		_, ok = s.Sessions.Load("about-to-expire")
		if !ok {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.False(t, ok, "the background maintenance loop should have swept the expired session")
}
