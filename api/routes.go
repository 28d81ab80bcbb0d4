package api

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/ani/ani-gogo/fetcher"
	"github.com/ani/ani-gogo/logger"
	"github.com/ani/ani-gogo/sources"
	"github.com/ani/ani-gogo/types"
)

type RouteConfig struct {
	Fetcher fetcher.Fetcher
	// quality pinned by the links route when none is asked for
	Quality string
	// upper bound for resolving every episode link of one request,
	// defaults to defaultLinksTimeout
	LinksTimeout time.Duration
	Logger       *log.Logger
}

const defaultLinksTimeout = 45 * time.Second

type pageResponse struct {
	*types.SearchPage
	TotalPages  int  `json:"totalPages"`
	HasPrevPage bool `json:"hasPrevPage"`
}

type episodeLink struct {
	EpisodeId string              `json:"episodeId"`
	Number    int                 `json:"number"`
	Link      *types.VideoVariant `json:"link"`
}

type linksResponse struct {
	AnimeId string        `json:"animeId"`
	Quality string        `json:"quality"`
	Links   []episodeLink `json:"links"`
}

type sourcesResponse struct {
	EpisodeId string               `json:"episodeId"`
	Available bool                 `json:"available"`
	Variants  []types.VideoVariant `json:"variants"`
	Default   *types.VideoVariant  `json:"default"`
	Message   string               `json:"message,omitempty"`
}

const noLinkMessage = "no link available"

func InitiateRoutes(app *fiber.App, cfg RouteConfig) {
	f := cfg.Fetcher
	l := logger.OrDefault(cfg.Logger)
	pinned := cfg.Quality
	if pinned == "" {
		pinned = sources.DefaultPinnedQuality
	}
	linksTimeout := cfg.LinksTimeout
	if linksTimeout <= 0 {
		linksTimeout = defaultLinksTimeout
	}

	app.Get(topAiringUrl, func(c *fiber.Ctx) error {
		page, err := pageParam(c)
		if err != nil {
			return err
		}
		res, err := f.TopAiring(c.UserContext(), page)
		if err != nil {
			return err
		}
		return c.JSON(newPageResponse(res))
	})

	app.Get(searchAnimeUrl, func(c *fiber.Ctx) error {
		q := strings.TrimSpace(c.Query("q"))
		if q == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing search query")
		}
		page, err := pageParam(c)
		if err != nil {
			return err
		}
		res, err := f.Search(c.UserContext(), q, page)
		if err != nil {
			return err
		}
		return c.JSON(newPageResponse(res))
	})

	app.Get(animeInfoUrl, func(c *fiber.Ctx) error {
		info, err := f.Info(c.UserContext(), c.Params("animeId"))
		if err != nil {
			return err
		}
		return c.JSON(info)
	})

	app.Get(animeLinksUrl, func(c *fiber.Ctx) error {
		animeId := c.Params("animeId")
		quality := c.Query("quality", pinned)
		info, err := f.Info(c.UserContext(), animeId)
		if err != nil {
			return err
		}
		// the fiber user context is not tied to the client connection,
		// so the fan-out is bounded by a deadline instead
		ctx, cancel := context.WithTimeout(c.UserContext(), linksTimeout)
		defer cancel()
		links := sources.ResolveLinks(ctx, f, info.Episodes, quality, sources.LinkOptions{Logger: l})
		return c.JSON(linksResponse{
			AnimeId: info.Id,
			Quality: quality,
			Links: lo.Map(info.Episodes, func(ep types.Episode, _ int) episodeLink {
				return episodeLink{EpisodeId: ep.Id, Number: ep.Number, Link: toPtr(links[ep.Id])}
			}),
		})
	})

	// variant failures are per episode: always 200, available tells the
	// caller whether anything can be played
	app.Get(episodeSourcesUrl, func(c *fiber.Ctx) error {
		episodeId := c.Params("episodeId")
		res := sourcesResponse{EpisodeId: episodeId, Variants: []types.VideoVariant{}}

		raw, err := f.Sources(c.UserContext(), episodeId)
		if err != nil {
			l.Warn("no link", "episode", episodeId, "err", err)
			res.Message = noLinkMessage
			return c.JSON(res)
		}
		res.Variants = sources.SelectVariants(raw)
		res.Default = toPtr(sources.PickDefault(res.Variants))
		res.Available = res.Default != nil
		if !res.Available {
			res.Message = noLinkMessage
		}
		return c.JSON(res)
	})

	app.Get(episodeQualityUrl, func(c *fiber.Ctx) error {
		episodeId := c.Params("episodeId")
		raw, err := f.Sources(c.UserContext(), episodeId)
		if err != nil {
			l.Warn("no link", "episode", episodeId, "err", err)
			return fiber.NewError(fiber.StatusNotFound, noLinkMessage)
		}
		v, ok := sources.SelectByQuality(sources.SelectVariants(raw), c.Params("quality")).Get()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, noLinkMessage)
		}
		return c.JSON(v)
	})
}

func pageParam(c *fiber.Ctx) (int, error) {
	page := c.QueryInt("page", 1)
	if page < 1 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid page number")
	}
	return page, nil
}

func newPageResponse(p *types.SearchPage) pageResponse {
	return pageResponse{SearchPage: p, TotalPages: p.TotalPages(), HasPrevPage: p.CanPrev()}
}

func toPtr(o mo.Option[types.VideoVariant]) *types.VideoVariant {
	if v, ok := o.Get(); ok {
		return &v
	}
	return nil
}
