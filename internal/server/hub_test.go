package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHubPublishAndUnsubscribe(t *testing.T) {
	h := NewHub(1)

	idA, a, unsubA := h.Subscribe()
	idB, b, unsubB := h.Subscribe()
	require.NotEqual(t, idA, idB)
	require.Equal(t, 2, h.Len())

	require.Equal(t, 2, h.Publish([]byte("one")))
	require.Equal(t, "one", string(<-a))

	// b has not drained its buffer, so it misses the second frame.
	require.Equal(t, 1, h.Publish([]byte("two")))
	require.Equal(t, "two", string(<-a))
	require.Equal(t, "one", string(<-b))

	unsubA()
	unsubA()
	require.Equal(t, 1, h.Len())
	_, ok := <-a
	require.False(t, ok)

	unsubB()
	require.Equal(t, 0, h.Len())
	require.Equal(t, 0, h.Publish([]byte("three")))
}

func TestHubClose(t *testing.T) {
	h := NewHub(0)
	_, ch, unsub := h.Subscribe()

	h.Close()
	_, ok := <-ch
	require.False(t, ok)
	unsub()

	_, late, _ := h.Subscribe()
	_, ok = <-late
	require.False(t, ok)
	require.Equal(t, 0, h.Len())
}
