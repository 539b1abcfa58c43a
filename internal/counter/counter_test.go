package counter

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-member-go/pkg/database"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "#JHA-0001", Format(1))
	require.Equal(t, "#JHA-0420", Format(420))
	require.Equal(t, "#JHA-9999", Format(9999))
	require.Equal(t, "#JHA-12345", Format(12345))
}

type stubAllocator struct {
	n   int64
	err error
}

func (s *stubAllocator) Next(context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.n++
	return s.n, nil
}

func TestNextFormatted(t *testing.T) {
	a := &stubAllocator{n: 41}
	got, err := NextFormatted(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, "#JHA-0042", got)

	_, err = NextFormatted(context.Background(), &stubAllocator{err: errors.New("boom")})
	require.Error(t, err)
}

// Exercises the storage-level increment against a real postgres.
func TestRepoConcurrentNextIsDistinct(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.Connect(database.NewConfig(dsn, "", ""))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	repo := NewRepo(db, "test-"+t.Name())
	require.NoError(t, repo.EnsureTable(ctx))
	defer db.ExecContext(ctx, `DELETE FROM counters WHERE name = $1`, "test-"+t.Name())

	const workers, perWorker = 8, 25
	var (
		mu  sync.Mutex
		got []int64
		wg  sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last int64
			for i := 0; i < perWorker; i++ {
				n, err := repo.Next(ctx)
				require.NoError(t, err)
				// each caller observes strictly increasing values
				require.Greater(t, n, last)
				last = n
				mu.Lock()
				got = append(got, n)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Len(t, got, workers*perWorker)
	for i, n := range got {
		require.Equal(t, int64(i+1), n)
	}
}
