package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
)

func TestInMemoryStore_LoadUnknownSession(t *testing.T) {
	s := NewInMemoryStore()

	msgs, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestInMemoryStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Append(ctx, "s1", core.UserMessage("hi"), core.AssistantMessage("hello")))
	require.NoError(t, s.Append(ctx, "s1", core.UserMessage("again")))

	msgs, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "again", msgs[2].Content)

	msgs[0].Content = "mutated"
	again, _ := s.Load(ctx, "s1")
	assert.Equal(t, "hi", again[0].Content)

	assert.Equal(t, []string{"s1"}, s.Sessions())
	assert.True(t, s.Delete("s1"))
	assert.False(t, s.Delete("s1"))
}

func TestInMemoryStore_MaxMessages(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(WithMaxMessages(2))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, "s", core.UserMessage(fmt.Sprint(i))))
	}

	msgs, _ := s.Load(ctx, "s")
	require.Len(t, msgs, 2)
	assert.Equal(t, "3", msgs[0].Content)
	assert.Equal(t, "4", msgs[1].Content)
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewInMemoryStore()
	assert.ErrorIs(t, s.Append(ctx, "s", core.UserMessage("x")), context.Canceled)

	_, err := s.Load(ctx, "s")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryStore_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Append(ctx, "s", core.UserMessage("x"))
		}()
	}
	wg.Wait()

	msgs, _ := s.Load(ctx, "s")
	assert.Len(t, msgs, 50)
}
