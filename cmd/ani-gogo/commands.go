package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/urfave/cli/v2"

	"github.com/ani/ani-gogo/api"
	"github.com/ani/ani-gogo/download"
	"github.com/ani/ani-gogo/fetcher"
	"github.com/ani/ani-gogo/gui"
	"github.com/ani/ani-gogo/player"
	"github.com/ani/ani-gogo/sources"
	"github.com/ani/ani-gogo/types"
)

var pageFlag = &cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: 1, Usage: "result page"}

var tuiCommand = &cli.Command{
	Name:  "tui",
	Usage: "browse and play interactively (default)",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "autoplay", Usage: "start the first episode once the details are loaded"},
	},
	Action: runTui,
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "serve the JSON API",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "http", Usage: "TCP address to listen on", EnvVars: []string{"ANI_GOGO_HTTP_ADDR"}},
		&cli.StringSliceFlag{Name: "origins", Usage: "CORS allowed origins", EnvVars: []string{"ANI_GOGO_ALLOWED_ORIGINS"}},
		&cli.BoolFlag{Name: "access-log", Usage: "log every request"},
	},
	Action: func(c *cli.Context) error {
		r := rt(c)
		addr := r.cfg.HttpAddr
		if c.IsSet("http") {
			addr = c.String("http")
		}
		origins := r.cfg.AllowedOrigins
		if c.IsSet("origins") {
			origins = c.StringSlice("origins")
		}
		_, err := api.Serve(c.Context, &api.ServerConfig{
			ShowStartBanner: true,
			HttpAddr:        addr,
			AllowedOrigins:  origins,
			Fetcher:         r.fetcher,
			Quality:         r.cfg.Quality,
			AccessLog:       c.Bool("access-log"),
			Logger:          r.log,
		})
		return err
	},
}

var topCommand = &cli.Command{
	Name:  "top",
	Usage: "list the top airing anime",
	Flags: []cli.Flag{pageFlag},
	Action: func(c *cli.Context) error {
		page, err := rt(c).fetcher.TopAiring(c.Context, c.Int("page"))
		if err != nil {
			return err
		}
		printPage(page)
		return nil
	},
}

var searchCommand = &cli.Command{
	Name:      "search",
	Usage:     "search anime by title",
	ArgsUsage: "<query>",
	Flags:     []cli.Flag{pageFlag},
	Action: func(c *cli.Context) error {
		q := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
		if q == "" {
			return cli.Exit("missing search query", 2)
		}
		page, err := rt(c).fetcher.Search(c.Context, q, c.Int("page"))
		if err != nil {
			return err
		}
		printPage(page)
		return nil
	},
}

var infoCommand = &cli.Command{
	Name:      "info",
	Usage:     "show an anime and its episodes",
	ArgsUsage: "<anime id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "links", Usage: "resolve the pinned quality link of every episode"},
	},
	Action: func(c *cli.Context) error {
		id := c.Args().First()
		if id == "" {
			return cli.Exit("missing anime id", 2)
		}
		r := rt(c)
		info, err := r.fetcher.Info(c.Context, id)
		if err != nil {
			return err
		}

		color.New(color.Bold, color.FgGreen).Println(info.Title)
		if info.OtherName != "" {
			fmt.Println(info.OtherName)
		}
		fmt.Printf("%s · %s · %d episodes\n", info.Type, info.Status, info.TotalEpisodes)
		if info.Description != "" {
			fmt.Println()
			fmt.Println(info.Description)
		}
		fmt.Println()

		var links map[string]mo.Option[types.VideoVariant]
		if c.Bool("links") {
			links = sources.ResolveLinks(c.Context, r.fetcher, info.Episodes, r.cfg.Quality, sources.LinkOptions{Logger: r.log})
		}
		for _, ep := range info.Episodes {
			line := fmt.Sprintf("%4d  %s", ep.Number, color.HiBlackString(ep.Id))
			if links != nil {
				if v, ok := links[ep.Id].Get(); ok {
					line += "  " + color.CyanString(v.Url)
				} else {
					line += "  " + color.RedString(noLinkMessage)
				}
			}
			fmt.Println(line)
		}
		return nil
	},
}

var sourcesCommand = &cli.Command{
	Name:      "sources",
	Usage:     "list the playable variants of an episode",
	ArgsUsage: "<episode id>",
	Action: func(c *cli.Context) error {
		id := c.Args().First()
		if id == "" {
			return cli.Exit("missing episode id", 2)
		}
		r := rt(c)
		raw, err := r.fetcher.Sources(c.Context, id)
		if err != nil {
			// per episode failure, not a command failure
			r.log.Warn("no link", "episode", id, "err", err)
			color.Red(noLinkMessage)
			return nil
		}
		variants := sources.SelectVariants(raw)
		def, ok := sources.PickDefault(variants).Get()
		if !ok {
			color.Red(noLinkMessage)
			return nil
		}
		for _, v := range variants {
			marker := " "
			if v == def {
				marker = color.GreenString("*")
			}
			kind := "direct"
			if v.IsManifestStream {
				kind = "hls"
			}
			fmt.Printf("%s %-8s %-6s %s\n", marker, v.Quality, kind, color.CyanString(v.Url))
		}
		return nil
	},
}

var playCommand = &cli.Command{
	Name:      "play",
	Usage:     "play an episode with mpv or vlc",
	ArgsUsage: "<episode id>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "url", Usage: "play this video url directly"},
		&cli.StringFlag{Name: "title", Usage: "player window title"},
	},
	Action: func(c *cli.Context) error {
		r := rt(c)
		if u := c.String("url"); u != "" {
			return player.RunVideo(u, c.String("title"), r.headers)
		}

		id := c.Args().First()
		if id == "" {
			return cli.Exit("missing episode id", 2)
		}
		title := c.String("title")
		if title == "" {
			title = id
		}
		return playEpisode(c.Context, r, id, title, c.IsSet("quality"))
	},
}

var downloadCommand = &cli.Command{
	Name:      "download",
	Usage:     "download episodes of an anime",
	ArgsUsage: "<anime id>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "from", Usage: "first episode number"},
		&cli.IntFlag{Name: "to", Usage: "last episode number"},
		&cli.StringFlag{Name: "dir", Usage: "output folder", EnvVars: []string{"ANI_GOGO_DOWNLOAD_DIR"}},
	},
	Action: func(c *cli.Context) error {
		id := c.Args().First()
		if id == "" {
			return cli.Exit("missing anime id", 2)
		}
		r := rt(c)
		info, err := r.fetcher.Info(c.Context, id)
		if err != nil {
			return err
		}

		episodes := info.Episodes
		if c.IsSet("from") || c.IsSet("to") {
			from, to := c.Int("from"), c.Int("to")
			if !c.IsSet("from") {
				from = 1
			}
			if !c.IsSet("to") {
				to = lo.MaxBy(episodes, func(a, b types.Episode) bool { return a.Number > b.Number }).Number
			}
			episodes, err = download.EpisodeRange(episodes, from, to)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
		}
		if len(episodes) == 0 {
			return errors.WithMessagef(fetcher.ErrEmptyResult, "%s has no episodes", info.Title)
		}

		dir := r.cfg.DownloadDir
		if c.IsSet("dir") {
			dir = c.String("dir")
		}

		var paths []string
		err = download.WithProgress(c.Context, info.Title, os.Stdout, func(ctx context.Context, report func(download.Progress)) error {
			d := download.New(r.fetcher, download.Options{
				Dir:      dir,
				Quality:  r.cfg.Quality,
				Client:   r.client,
				Headers:  r.headers,
				Logger:   r.log,
				Progress: report,
			})
			var err error
			paths, err = d.DownloadEpisodes(ctx, info.Title, episodes)
			return err
		})
		for _, p := range paths {
			color.Green("saved %s", p)
		}
		return err
	},
}

func runTui(c *cli.Context) error {
	r := rt(c)
	ext, err := player.NewExternal(r.cfg.Player, r.headers, r.log)
	if err != nil {
		return err
	}

	states := make(chan player.State, 16)
	session := player.NewSession(r.fetcher, ext, player.Options{
		NewDecoder:    r.newDecoder,
		OnStateChange: gui.StateListener(states),
		Logger:        r.log,
	})
	defer session.Close()

	p := tea.NewProgram(gui.InitialModel(gui.Deps{
		Fetcher:    r.fetcher,
		Session:    session,
		States:     states,
		AutoSelect: c.Bool("autoplay"),
		SetTitle:   ext.SetTitle,
		Logger:     r.log,
		Context:    c.Context,
	}), tea.WithContext(c.Context))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// playEpisode starts the default variant, or the configured quality when
// asked for, and waits for the player to exit.
func playEpisode(ctx context.Context, r *runtime, episodeId, title string, pinQuality bool) error {
	ext, err := player.NewExternal(r.cfg.Player, r.headers, r.log)
	if err != nil {
		return err
	}
	ext.SetTitle(title)

	states := make(chan player.State, 16)
	session := player.NewSession(r.fetcher, ext, player.Options{
		NewDecoder:    r.newDecoder,
		OnStateChange: gui.StateListener(states),
		Logger:        r.log,
	})
	defer session.Close()

	if err := session.SelectEpisode(ctx, episodeId); err != nil {
		if fetcher.IsNoLink(err) || errors.Is(err, fetcher.ErrNetwork) {
			return errors.WithMessage(err, noLinkMessage)
		}
		return err
	}
	if pinQuality {
		if err := session.SelectQuality(r.cfg.Quality); err != nil {
			r.log.Warn("keeping the default variant", "err", err)
		}
	}

	// manifest streams only reach the player once parsed
	timeout := time.After(2 * r.cfg.Timeout.Std())
	for session.State() != player.Playing {
		select {
		case <-states:
		case <-timeout:
			return errors.Errorf("%s did not start playing", episodeId)
		case <-ctx.Done():
			return nil
		}
	}

	if v, ok := session.Current().Get(); ok {
		fmt.Printf("%s %s %s\n", color.GreenString("playing"), title, color.CyanString("[%s]", v.Quality))
	}
	select {
	case <-ext.Done():
	case <-ctx.Done():
	}
	return nil
}

const noLinkMessage = "no link available"

func printPage(page *types.SearchPage) {
	if len(page.Results) == 0 {
		color.Yellow("no results")
		return
	}
	index := color.New(color.FgCyan)
	for i, a := range page.Results {
		index.Printf("%3d ", i+1)
		fmt.Print(a.Title)
		if a.ReleaseDate != "" {
			fmt.Printf(" (%s)", a.ReleaseDate)
		}
		fmt.Printf("  %s\n", color.HiBlackString(a.Id))
	}

	footer := fmt.Sprintf("page %d", page.CurrentPage)
	if total := page.TotalPages(); total > 0 {
		footer += fmt.Sprintf("/%d", total)
	}
	if page.CanNext() {
		footer += ", more with --page " + fmt.Sprint(page.CurrentPage+1)
	}
	fmt.Println(color.HiBlackString(footer))
}
