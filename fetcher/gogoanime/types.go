package gogoanime

import "github.com/ani/ani-gogo/types"

// wire shapes of the consumet style proxy; pointers mark required fields
// so a missing key can be told apart from an empty one.

type searchResponse struct {
	CurrentPage  int            `json:"currentPage"`
	HasNextPage  bool           `json:"hasNextPage"`
	TotalResults int            `json:"totalResults"`
	Results      *[]types.Anime `json:"results"`
}

type infoResponse struct {
	types.Anime
	Description   string           `json:"description"`
	Type          string           `json:"type"`
	Status        string           `json:"status"`
	OtherName     string           `json:"otherName"`
	TotalEpisodes int              `json:"totalEpisodes"`
	Episodes      *[]types.Episode `json:"episodes"`
}

type watchSource struct {
	Url     string `json:"url"`
	IsM3U8  bool   `json:"isM3U8"`
	Quality string `json:"quality"`
}

type watchResponse struct {
	Headers  map[string]string `json:"headers"`
	Sources  *[]watchSource    `json:"sources"`
	Download string            `json:"download"`
}
