package server

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Server, *GameService) {
	t.Helper()
	logger := log.New(io.Discard)
	srv := NewServer("localhost:0", logger)
	svc := NewGameService(srv, GameSettings{
		PointThreshold: 100,
		MinPlayers:     2,
	}, quartz.NewReal(), logger)
	srv.SetService(svc)
	return srv, svc
}

func TestStartGameRequiresEnoughPlayers(t *testing.T) {
	_, svc := newTestService(t)

	err := svc.StartGame("empty-session")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need at least 2")
	assert.False(t, svc.Running("empty-session"))
}

func TestOnActorGoneIgnoresIdleSession(t *testing.T) {
	_, svc := newTestService(t)

	// No game is running; a departure must be a no-op.
	svc.OnActorGone("idle-session", "nobody")
	assert.False(t, svc.Running("idle-session"))
}

func TestCreateSessionIDsAreUnique(t *testing.T) {
	srv, _ := newTestService(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := srv.CreateSession()
		assert.False(t, seen[id], "duplicate session id %s", id)
		seen[id] = true
	}
}

func TestMembersEmptyForUnknownSession(t *testing.T) {
	srv, _ := newTestService(t)
	assert.Empty(t, srv.Members("nope"))
}
