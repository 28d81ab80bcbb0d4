package types

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

type Anime struct {
	Id          string   `json:"id"`
	Title       string   `json:"title"`
	Url         string   `json:"url,omitempty"`
	Image       string   `json:"image"`
	ReleaseDate string   `json:"releaseDate,omitempty"`
	SubOrDub    string   `json:"subOrDub,omitempty"` // sub or dub
	Genres      []string `json:"genres,omitempty"`
}

type Episode struct {
	Id     string `json:"id"`
	Number int    `json:"number"`
	Url    string `json:"url,omitempty"`
}

type AnimeInfo struct {
	Anime
	Description   string    `json:"description,omitempty"`
	Type          string    `json:"type,omitempty"`
	Status        string    `json:"status,omitempty"`
	OtherName     string    `json:"otherName,omitempty"`
	TotalEpisodes int       `json:"totalEpisodes"`
	Episodes      []Episode `json:"episodes"`
}

// VideoVariant is one playable rendition of an episode.
type VideoVariant struct {
	Url     string `json:"url"`
	Quality string `json:"quality"`
	// true for segmented .m3u8 streams that need a decoder in front of the player
	IsManifestStream bool `json:"isManifestStream"`
}

// NewVideoVariant derives the stream type from the url extension,
// falling back to the upstream flag when the url has no extension.
func NewVideoVariant(rawUrl, quality string, upstreamM3U8 bool) VideoVariant {
	return VideoVariant{
		Url:              rawUrl,
		Quality:          quality,
		IsManifestStream: IsManifestUrl(rawUrl, upstreamM3U8),
	}
}

func IsManifestUrl(rawUrl string, fallback bool) bool {
	p := rawUrl
	if u, err := url.Parse(rawUrl); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return fallback
	}
	return ext == ".m3u8"
}

var unsafeIdChars = regexp.MustCompile(`[^a-zA-Z0-9\-\s]`)

// CleanId drops everything but letters, digits, hyphens and whitespace.
func CleanId(id string) string {
	return unsafeIdChars.ReplaceAllString(id, "")
}

var spaces = regexp.MustCompile(`\s+`)

// Slug turns a display title into the id form used by the detail page.
func Slug(title string) string {
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
}
