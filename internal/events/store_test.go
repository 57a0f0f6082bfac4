package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_CountsAreScopedByAccount(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				require.NoError(t, store.Record(ctx, Record{
					TenantID: "t1", AccountID: "acct-a", Platform: "tiktok",
					ActorID: "user-1", VideoID: "v1", Kind: KindSuggestion,
					CreatedAt: now.Add(-time.Duration(i) * time.Minute),
				}))
			}
			require.NoError(t, store.Record(ctx, Record{
				TenantID: "t1", AccountID: "acct-a", Platform: "tiktok",
				ActorID: "user-2", VideoID: "v2", Kind: KindEvent, CreatedAt: now,
			}))

			n, err := store.CountEvents(ctx, Query{TenantID: "t1", AccountID: "acct-a", VideoID: "v1", Kind: KindSuggestion})
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			n, err = store.CountEvents(ctx, Query{TenantID: "t1", AccountID: "acct-b", VideoID: "v1", Kind: KindSuggestion})
			require.NoError(t, err)
			assert.Equal(t, 0, n, "another account sees none of acct-a's suggestions")

			n, err = store.CountEvents(ctx, Query{TenantID: "t1", AccountID: "acct-a", Since: now.Add(-90 * time.Second)})
			require.NoError(t, err)
			assert.Equal(t, 3, n, "two suggestions and the event fall inside the window")

			require.NoError(t, store.Record(ctx, Record{TenantID: "t1", AccountID: "acct-b", Kind: KindEvent, CreatedAt: now}))
			n, err = store.CountEvents(ctx, Query{TenantID: "t1", AllAccounts: true, Kind: KindEvent})
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestStore_LastEventAt(t *testing.T) {
	ctx := context.Background()
	newest := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			q := Query{TenantID: "t1", AccountID: "acct", ActorID: "user-1", Kind: KindSuggestion}
			_, ok, err := store.LastEventAt(ctx, q)
			require.NoError(t, err)
			assert.False(t, ok)

			for _, ts := range []time.Time{newest.Add(-time.Hour), newest, newest.Add(-2 * time.Hour)} {
				require.NoError(t, store.Record(ctx, Record{
					TenantID: "t1", AccountID: "acct", ActorID: "user-1", Platform: "youtube",
					VideoID: "v", Kind: KindSuggestion, CreatedAt: ts,
				}))
			}
			last, ok, err := store.LastEventAt(ctx, q)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.True(t, newest.Equal(last), "got %s", last)
		})
	}
}

func TestStore_UnknownIntentsAndPurge(t *testing.T) {
	ctx := context.Background()
	old := time.Now().Add(-60 * 24 * time.Hour)

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.RecordUnknown(ctx, UnknownIntent{
				TenantID: "t1", Text: "that shade though", Primary: "UNKNOWN", Strength: "LOW",
				Signals: []string{"PRONOUN:that", "ATTRIBUTE:shade"}, Confidence: 1,
			}))
			require.NoError(t, store.RecordUnknown(ctx, UnknownIntent{
				TenantID: "t1", Text: "old", Primary: "UNKNOWN", Strength: "LOW", CreatedAt: old,
			}))
			require.NoError(t, store.Record(ctx, Record{TenantID: "t1", Kind: KindEvent, CreatedAt: old}))

			list, err := store.ListUnknown(ctx, "t1", 10)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "that shade though", list[0].Text)
			assert.Equal(t, []string{"PRONOUN:that", "ATTRIBUTE:shade"}, list[0].Signals)

			purged, err := store.Purge(ctx, time.Now().Add(-30*24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(2), purged)

			list, err = store.ListUnknown(ctx, "", 0)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestMemoryStore_InjectedError(t *testing.T) {
	m := NewMemoryStore()
	m.Err = errors.New("db down")
	_, err := m.CountEvents(context.Background(), Query{})
	assert.Error(t, err)
	_, _, err = m.LastEventAt(context.Background(), Query{})
	assert.Error(t, err)
}

func TestStartOfDay(t *testing.T) {
	got := StartOfDay(time.Date(2026, 5, 4, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), got)
}
