package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState() *State {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStateHappyPath(t *testing.T) {
	ctx := context.Background()
	s := newState()
	assert.Equal(t, Disconnected, s.Current())

	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, Connecting, s.Current())

	require.NoError(t, s.Established(ctx))
	assert.True(t, s.View().Connected())
}

func TestStateFailureKeepsCause(t *testing.T) {
	ctx := context.Background()
	s := newState()
	require.NoError(t, s.Connect(ctx))

	require.NoError(t, s.Fail(ctx, errors.New("consent denied")))

	v := s.View()
	assert.Equal(t, Failed, v.State)
	assert.Equal(t, "consent denied", v.Error)
	assert.False(t, v.Connected())

	// retry clears the error
	require.NoError(t, s.Connect(ctx))
	assert.Empty(t, s.View().Error)
}

func TestStateInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	s := newState()

	err := s.Fail(ctx, errors.New("x"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Disconnected, s.Current())

	require.NoError(t, s.Connect(ctx))
	assert.ErrorIs(t, s.Connect(ctx), ErrInvalidTransition)
}

func TestStateDisconnect(t *testing.T) {
	ctx := context.Background()
	s := newState()

	// returning from the provider without a prior connect, as after a restart
	require.NoError(t, s.Established(ctx))
	require.NoError(t, s.Disconnect(ctx))
	assert.Equal(t, Disconnected, s.Current())

	assert.ErrorIs(t, s.Disconnect(ctx), ErrInvalidTransition)
}
