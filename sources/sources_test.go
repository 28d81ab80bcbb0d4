package sources

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ani/ani-gogo/fetcher"
	"github.com/ani/ani-gogo/logger"
	"github.com/ani/ani-gogo/types"
)

func TestSelectVariantsScenario(t *testing.T) {
	raw := []types.VideoVariant{
		{Url: "a", Quality: "default"},
		{Url: "b", Quality: "360p"},
		{Url: "c", Quality: "backup"},
		{Url: "d", Quality: "720p"},
	}

	filtered := SelectVariants(raw)
	assert.Equal(t, []types.VideoVariant{
		{Url: "b", Quality: "360p"},
		{Url: "d", Quality: "720p"},
	}, filtered)

	def, ok := PickDefault(filtered).Get()
	require.True(t, ok)
	assert.Equal(t, types.VideoVariant{Url: "b", Quality: "360p"}, def)
}

func TestSelectVariantsEmpty(t *testing.T) {
	for _, raw := range [][]types.VideoVariant{
		nil,
		{},
		{{Url: "a", Quality: "default"}, {Url: "c", Quality: "backup"}},
	} {
		filtered := SelectVariants(raw)
		assert.NotNil(t, filtered)
		assert.Empty(t, filtered)
		assert.True(t, PickDefault(filtered).IsAbsent())
	}
}

func TestSelectVariantsProperties(t *testing.T) {
	qualities := []string{"default", "backup", "360p", "480p", "720p", "1080p", "Default", "BACKUP"}
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		raw := make([]types.VideoVariant, r.Intn(12))
		for j := range raw {
			raw[j] = types.VideoVariant{
				Url:              fmt.Sprintf("https://cdn.example.com/%d/%d.m3u8", i, j),
				Quality:          qualities[r.Intn(len(qualities))],
				IsManifestStream: r.Intn(2) == 0,
			}
		}

		filtered := SelectVariants(raw)

		// no sentinel survives, every survivor is an unchanged input entry,
		// and relative order is kept
		next := 0
		for _, v := range filtered {
			assert.False(t, IsSentinel(v.Quality))
			found := false
			for next < len(raw) {
				if raw[next] == v {
					found = true
					next++
					break
				}
				next++
			}
			assert.True(t, found, "variant %v not found in order", v)
		}

		expected := 0
		for _, v := range raw {
			if !IsSentinel(v.Quality) {
				expected++
			}
		}
		assert.Len(t, filtered, expected)

		if len(filtered) > 0 {
			assert.Equal(t, filtered[0], PickDefault(filtered).MustGet())
		} else {
			assert.True(t, PickDefault(filtered).IsAbsent())
		}
	}
}

func TestSelectByQuality(t *testing.T) {
	variants := []types.VideoVariant{
		{Url: "a", Quality: "360p"},
		{Url: "b", Quality: "720p"},
		{Url: "c", Quality: "360p"},
	}

	testCases := []struct {
		name    string
		quality string
		url     string
		found   bool
	}{
		{name: "first match wins", quality: "360p", url: "a", found: true},
		{name: "exact match", quality: "720p", url: "b", found: true},
		{name: "case sensitive", quality: "720P", found: false},
		{name: "missing quality", quality: "1080p", found: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := SelectByQuality(variants, tc.quality).Get()
			assert.Equal(t, tc.found, ok)
			if tc.found {
				assert.Equal(t, tc.url, v.Url)
			}
		})
	}

	assert.True(t, SelectByQuality(nil, "360p").IsAbsent())
}

func TestQualities(t *testing.T) {
	assert.Equal(t, []string{"360p", "720p"}, Qualities([]types.VideoVariant{{Quality: "360p"}, {Quality: "720p"}}))
}

type mapFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	sources map[string][]types.VideoVariant
	errs    map[string]error
}

func (m *mapFetcher) Sources(_ context.Context, id string) ([]types.VideoVariant, error) {
	m.mu.Lock()
	m.calls[id]++
	m.mu.Unlock()
	if err, ok := m.errs[id]; ok {
		return nil, err
	}
	return m.sources[id], nil
}

func TestResolveLinks(t *testing.T) {
	f := &mapFetcher{
		calls: map[string]int{},
		sources: map[string][]types.VideoVariant{
			"ep-1": {{Url: "1-360", Quality: "360p"}, {Url: "1-720", Quality: "720p"}},
			"ep-2": {{Url: "2-720", Quality: "720p"}},
			"ep-4": {{Url: "4-360", Quality: "360p"}},
		},
		errs: map[string]error{
			"ep-3": fetcher.ErrNetwork,
		},
	}
	episodes := []types.Episode{{Id: "ep-1", Number: 1}, {Id: "ep-2", Number: 2}, {Id: "ep-3", Number: 3}, {Id: "ep-4", Number: 4}}

	links := ResolveLinks(context.Background(), f, episodes, DefaultPinnedQuality, LinkOptions{Workers: 2, Logger: logger.Discard()})

	require.Len(t, links, 4)
	assert.Equal(t, "1-360", links["ep-1"].MustGet().Url)
	assert.True(t, links["ep-2"].IsAbsent())
	assert.True(t, links["ep-3"].IsAbsent())
	assert.Equal(t, "4-360", links["ep-4"].MustGet().Url)
	for _, ep := range episodes {
		assert.Equal(t, 1, f.calls[ep.Id])
	}
}

func TestResolveLinksCancelled(t *testing.T) {
	f := &mapFetcher{calls: map[string]int{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	links := ResolveLinks(ctx, f, []types.Episode{{Id: "ep-1"}}, "360p", LinkOptions{Logger: logger.Discard()})
	assert.True(t, links["ep-1"].IsAbsent())
}
