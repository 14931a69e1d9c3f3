package assets

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/levelhost/internal/core/lifecycle"
	"github.com/zeusync/levelhost/internal/core/services"
)

func newStarted(t *testing.T, cfg *Config) *Service {
	t.Helper()
	s := NewService(services.Env{Name: "assets"})
	require.NoError(t, s.Configure(cfg))
	require.NoError(t, s.Start(context.Background(), nil))
	t.Cleanup(func() { _ = s.Stop(context.Background(), nil) })
	return s
}

func levelBundle(names ...string) []BundleSpec {
	out := make([]BundleSpec, 0, len(names))
	for _, n := range names {
		out = append(out, BundleSpec{Category: "levels", Key: n, Assets: []AssetSpec{{Key: n, Params: map[string]string{"music": "440"}}}})
	}
	return out
}

func TestRequest_CaseInsensitive(t *testing.T) {
	assert.Equal(t, Request("levels", "Arena"), Request("levels", "arena"))
	assert.Equal(t, BundleRequest{Category: "levels", Bundle: "arena", Asset: "arena"}, Request("Levels", "ARENA"))
	assert.Equal(t, "levels/arena/arena", BundleRequest{"Levels", "Arena", "ARENA"}.Key())
}

func TestService_ConfigMismatch(t *testing.T) {
	s := NewService(services.Env{Name: "assets"})
	assert.ErrorIs(t, s.Configure(Config{}), lifecycle.ErrConfigMismatch)
	assert.ErrorIs(t, s.Configure(nil), lifecycle.ErrMissingConfig)
}

func TestService_FetchBeforeStart(t *testing.T) {
	s := NewService(services.Env{Name: "assets"})
	_, err := s.Fetch(context.Background(), Request("levels", "a"))
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestService_FetchAndRelease(t *testing.T) {
	s := newStarted(t, &Config{Bundles: levelBundle("arena")})

	v, err := s.Fetch(context.Background(), Request("levels", "Arena"))
	require.NoError(t, err)
	spec, ok := v.(AssetSpec)
	require.True(t, ok)
	assert.Equal(t, "440", spec.Params["music"])

	refs, ok := s.Refs("levels/arena/arena")
	require.True(t, ok)
	assert.Equal(t, 1, refs)

	_, err = s.Fetch(context.Background(), Request("levels", "arena"))
	require.NoError(t, err)
	refs, _ = s.Refs("levels/arena/arena")
	assert.Equal(t, 2, refs)

	s.Release("levels/arena/arena", false)
	s.Release("levels/arena/arena", false)
	assert.Equal(t, 1, s.Cached(), "unreferenced assets stay until dropped")
	assert.Equal(t, 1, s.DropUnused())
	assert.Equal(t, 0, s.Cached())
}

func TestService_ForcedRelease(t *testing.T) {
	s := newStarted(t, &Config{Bundles: levelBundle("arena")})

	_, err := s.Fetch(context.Background(), Request("levels", "arena"))
	require.NoError(t, err)

	s.Release("Levels/Arena/Arena", true)
	_, ok := s.Refs("levels/arena/arena")
	assert.False(t, ok)

	assert.NotPanics(t, func() { s.Release("levels/missing/missing", true) })
}

func TestService_NotFound(t *testing.T) {
	s := newStarted(t, &Config{Bundles: levelBundle("arena")})

	_, err := s.Fetch(context.Background(), Request("levels", "nowhere"))
	assert.ErrorIs(t, err, ErrBundleNotFound)

	_, err = s.Fetch(context.Background(), BundleRequest{Category: "levels", Bundle: "arena", Asset: "other"})
	assert.ErrorIs(t, err, ErrAssetNotFound)
	assert.Equal(t, 0, s.Cached())
}

func TestService_Decoder(t *testing.T) {
	s := newStarted(t, &Config{Bundles: levelBundle("arena", "broken")})

	s.RegisterDecoder("levels", func(spec AssetSpec) (any, error) {
		if spec.Key == "broken" {
			return nil, errors.New("bad blueprint")
		}
		return "decoded:" + spec.Key, nil
	})

	v, err := s.Fetch(context.Background(), Request("levels", "arena"))
	require.NoError(t, err)
	assert.Equal(t, "decoded:arena", v)

	_, err = s.Fetch(context.Background(), Request("levels", "broken"))
	assert.ErrorContains(t, err, "bad blueprint")
}

func TestService_ConcurrentFetchSharesLoad(t *testing.T) {
	s := newStarted(t, &Config{FetchDelay: 30 * time.Millisecond, Bundles: levelBundle("arena")})

	var decodes atomic.Int32
	s.RegisterDecoder("levels", func(spec AssetSpec) (any, error) {
		decodes.Add(1)
		return &spec, nil
	})

	const n = 8
	results := make([]any, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.Fetch(context.Background(), Request("levels", "arena"))
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, decodes.Load())
	for _, v := range results[1:] {
		assert.Same(t, results[0], v)
	}
	refs, _ := s.Refs("levels/arena/arena")
	assert.Equal(t, n, refs)
}

func TestService_FetchCancelled(t *testing.T) {
	s := newStarted(t, &Config{FetchDelay: time.Second, Bundles: levelBundle("arena")})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Fetch(ctx, Request("levels", "arena"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, s.Cached())
}
