package network

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/temoto/wifionoff/log2"
)

func TestCommandNetwork(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := log2.NewTest(t, log2.LDebug)

	n := NewCommandNetwork(Config{}, log)
	assert.True(t, n.Connected(ctx))
	assert.True(t, errors.IsNotSupported(n.Pair(ctx)))
	assert.True(t, errors.IsNotSupported(n.Forget(ctx)))

	n = NewCommandNetwork(Config{StatusCmd: "exit 1", PairCmd: "true", ForgetCmd: "echo fail >&2; exit 3"}, log)
	assert.False(t, n.Connected(ctx))
	assert.NoError(t, n.Pair(ctx))
	assert.Error(t, n.Forget(ctx))
}

func TestCommandNetworkTimeout(t *testing.T) {
	t.Parallel()
	n := NewCommandNetwork(Config{PairCmd: "exec sleep 5", TimeoutSec: 1}, log2.NewTest(t, log2.LDebug))
	err := n.Pair(context.Background())
	assert.Error(t, err)
}

func TestMock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var m Mock
	assert.False(t, m.Connected(ctx))
	assert.NoError(t, m.Pair(ctx))
	assert.True(t, m.Connected(ctx))
	assert.NoError(t, m.Forget(ctx))
	assert.False(t, m.Connected(ctx))
	pairs, forgets := m.Counts()
	assert.Equal(t, 1, pairs)
	assert.Equal(t, 1, forgets)

	var _ Networker = &m
	var _ Networker = &CommandNetwork{}
}
