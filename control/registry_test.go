package control

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	reg := NewRegistry(nil)
	assert.Equal(t, "general", reg.DefaultChannel())
	assert.Equal(t, []string{"general"}, reg.Channels())

	reg = NewRegistry([]string{"Lobby", "random"})
	assert.Equal(t, "lobby", reg.DefaultChannel())
	assert.Equal(t, []string{"lobby", "random"}, reg.Channels())
}

func TestRegistryClaimIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry(nil)

	require.True(t, reg.TryClaim("Alice", &Handler{}))
	assert.False(t, reg.TryClaim("alice", &Handler{}))
	assert.False(t, reg.TryClaim("ALICE", &Handler{}))

	reg.Unregister("aLiCe")
	assert.True(t, reg.TryClaim("alice", &Handler{}))
}

// Exactly one of many concurrent claims for the same name may win.
func TestRegistryConcurrentClaims(t *testing.T) {
	reg := NewRegistry(nil)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.TryClaim("alice", &Handler{}) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, []string{"alice"}, reg.ConnectedUsers())
}

func TestRegistryEnsureChannel(t *testing.T) {
	reg := NewRegistry([]string{"general"})

	assert.True(t, reg.EnsureChannel("newroom"), "first reference is new")
	assert.False(t, reg.EnsureChannel("newroom"), "second reference is not")
	assert.False(t, reg.EnsureChannel("NEWROOM"), "channel names are case-insensitive")
	assert.Equal(t, []string{"general", "newroom"}, reg.Channels())
}

func TestRegistryConnectedUsersSorted(t *testing.T) {
	reg := NewRegistry(nil)
	require.True(t, reg.TryClaim("carol", &Handler{}))
	require.True(t, reg.TryClaim("alice", &Handler{}))
	require.True(t, reg.TryClaim("bob", &Handler{}))

	assert.Equal(t, []string{"alice", "bob", "carol"}, reg.ConnectedUsers())
}
