package api

const (
	baseUrl         = "/api"
	animeBaseUrl    = baseUrl + "/anime"
	episodesBaseUrl = baseUrl + "/episodes"

	topAiringUrl   = animeBaseUrl + "/top-airing"
	searchAnimeUrl = animeBaseUrl + "/search"
	animeInfoUrl   = animeBaseUrl + "/info/:animeId"
	animeLinksUrl  = animeInfoUrl + "/links"

	episodeSourcesUrl = episodesBaseUrl + "/:episodeId/sources"
	episodeQualityUrl = episodeSourcesUrl + "/:quality"
)
