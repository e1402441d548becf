package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// runRepositoryContract exercises the behaviour every backend must share.
func runRepositoryContract(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	s := &Session{
		Token:           "tok-1",
		UserID:          "user-1",
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Hour),
		LastRefreshedAt: now,
	}
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "user-1", got.UserID)
	require.True(t, got.ExpiresAt.Equal(s.ExpiresAt), "expiresAt %s != %s", got.ExpiresAt, s.ExpiresAt)

	missing, err := repo.GetByToken(ctx, "no-such-token")
	require.NoError(t, err)
	require.Nil(t, missing)

	// forward extension is applied
	changed, err := repo.Extend(ctx, "tok-1", now.Add(2*time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, changed)

	// backwards and equal extensions are ignored
	changed, err = repo.Extend(ctx, "tok-1", now.Add(90*time.Minute), now.Add(2*time.Minute))
	require.NoError(t, err)
	require.False(t, changed)
	changed, err = repo.Extend(ctx, "tok-1", now.Add(2*time.Hour), now.Add(3*time.Minute))
	require.NoError(t, err)
	require.False(t, changed)

	got, err = repo.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.True(t, got.ExpiresAt.Equal(now.Add(2*time.Hour)))
	require.True(t, got.LastRefreshedAt.Equal(now.Add(time.Minute)))

	changed, err = repo.Extend(ctx, "no-such-token", now.Add(3*time.Hour), now)
	require.NoError(t, err)
	require.False(t, changed)

	require.NoError(t, repo.DeleteByToken(ctx, "tok-1"))
	got, err = repo.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, repo.DeleteByToken(ctx, "tok-1"))
}

func TestMemoryRepository_Contract(t *testing.T) {
	runRepositoryContract(t, NewMemoryRepository())
}

func TestMemoryRepository_ConcurrentExtendKeepsMaximum(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, &Session{Token: "t", UserID: "u", CreatedAt: base, ExpiresAt: base, LastRefreshedAt: base}))

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = repo.Extend(ctx, "t", base.Add(time.Duration(i)*time.Minute), base)
		}(i)
	}
	wg.Wait()

	got, err := repo.GetByToken(ctx, "t")
	require.NoError(t, err)
	require.True(t, got.ExpiresAt.Equal(base.Add(50*time.Minute)))
}
