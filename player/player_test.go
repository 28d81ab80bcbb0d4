package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func installed(bins ...string) func(string) bool {
	return func(bin string) bool {
		for _, b := range bins {
			if b == bin {
				return true
			}
		}
		return false
	}
}

func TestFindPlayer(t *testing.T) {
	testCases := []struct {
		name      string
		preferred string
		installed []string
		want      string
		err       error
	}{
		{name: "mpv first", preferred: "auto", installed: []string{"mpv", "vlc"}, want: "mpv"},
		{name: "vlc fallback", preferred: "", installed: []string{"vlc"}, want: "vlc"},
		{name: "preferred vlc", preferred: "vlc", installed: []string{"mpv", "vlc"}, want: "vlc"},
		{name: "preferred missing", preferred: "vlc", installed: []string{"mpv"}, want: "mpv"},
		{name: "nothing installed", preferred: "auto", err: ErrNoPlayer},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := findPlayer(tc.preferred, installed(tc.installed...))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.bin)
		})
	}
}

func TestPlayerArgs(t *testing.T) {
	headers := map[string]string{"Referer": "https://s3taku.com"}

	mpv, err := findPlayer("mpv", installed("mpv"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--force-media-title=One Piece - 1",
		"--http-header-fields=Referer: https://s3taku.com",
		"https://cdn/ep.m3u8",
	}, mpv.args("https://cdn/ep.m3u8", "One Piece - 1", headers))
	assert.Equal(t, []string{"--force-media-title=t", "u"}, mpv.args("u", "t", nil))

	vlc, err := findPlayer("vlc", installed("vlc"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--play-and-exit",
		"--meta-title=One Piece - 1",
		"--http-referrer=https://s3taku.com",
		"https://cdn/ep.m3u8",
	}, vlc.args("https://cdn/ep.m3u8", "One Piece - 1", headers))
}

func TestExternalRequiresSource(t *testing.T) {
	e := &External{player: players[0]}
	assert.Error(t, e.SetSource(""))
	assert.Error(t, e.Play())
	assert.NoError(t, e.Stop())

	select {
	case <-e.Done():
	default:
		t.Fatal("Done should be closed when nothing runs")
	}
}
