package gui

import (
	"github.com/ani/ani-gogo/player"
	"github.com/ani/ani-gogo/types"
)

// events

// a listing page (search or top airing) arrived
type PageLoadedEvent struct {
	query string
	page  *types.SearchPage
}

// anime details with its episodes arrived
type InfoLoadedEvent struct {
	info *types.AnimeInfo
}

// a page-level fetch failed, stage is the one whose list was loading
type FetchFailedEvent struct {
	stage int
	err   error
}

// SelectEpisode finished, err is nil when a variant was attached
type EpisodeSelectedEvent struct {
	episode types.Episode
	err     error
}

type QualitySelectedEvent struct {
	quality string
	err     error
}

type PlaybackStateEvent struct {
	state player.State
}
