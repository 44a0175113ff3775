package transcripts

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqliteStore, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })
	return map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStore_AppendPreservesOrder(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Append(ctx, "s1", Turn{Role: RoleUser, Content: "one"}))
			require.NoError(t, s.Append(ctx, "s1", Turn{Role: RoleAssistant, Content: "two"}))
			require.NoError(t, s.Append(ctx, "s2", Turn{Role: RoleUser, Content: "other"}))
			require.NoError(t, s.Append(ctx, "s1", Turn{Role: RoleUser, Content: "three"}))

			turns, err := s.Turns(ctx, "s1")
			require.NoError(t, err)
			require.Equal(t, []Turn{
				{Role: RoleUser, Content: "one"},
				{Role: RoleAssistant, Content: "two"},
				{Role: RoleUser, Content: "three"},
			}, turns)

			ids, err := s.Sessions(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"s1", "s2"}, ids)
		})
	}
}

func TestStore_UnknownSessionIsEmpty(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			turns, err := s.Turns(context.Background(), "missing")
			require.NoError(t, err)
			require.Empty(t, turns)
		})
	}
}

func TestStore_EmptySessionKeyAndContent(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Append(ctx, "", Turn{Role: RoleUser, Content: ""}))
			turns, err := s.Turns(ctx, "")
			require.NoError(t, err)
			require.Equal(t, []Turn{{Role: RoleUser, Content: ""}}, turns)
		})
	}
}

func TestStore_RejectsInvalidRole(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Append(context.Background(), "s1", Turn{Role: "system", Content: "x"})
			require.Error(t, err)
		})
	}
}

func TestInMemoryStore_TurnsReturnsCopy(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "s1", Turn{Role: RoleUser, Content: "hello"}))

	turns, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	turns[0].Content = "tampered"

	again, err := s.Turns(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "hello", again[0].Content)
}

func TestStore_ConcurrentAppend(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const n = 50
			var wg sync.WaitGroup
			wg.Add(n)
			for i := range n {
				go func() {
					defer wg.Done()
					_ = s.Append(ctx, fmt.Sprintf("s%d", i%5), Turn{Role: RoleUser, Content: "msg"})
				}()
			}
			wg.Wait()

			total := 0
			ids, err := s.Sessions(ctx)
			require.NoError(t, err)
			for _, id := range ids {
				turns, err := s.Turns(ctx, id)
				require.NoError(t, err)
				total += len(turns)
			}
			require.Equal(t, n, total)
		})
	}
}

func TestNew_Kinds(t *testing.T) {
	s, err := New("memory")
	require.NoError(t, err)
	require.IsType(t, &InMemoryStore{}, s)

	s, err = New("SQLite")
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = New("postgres")
	require.Error(t, err)
}
