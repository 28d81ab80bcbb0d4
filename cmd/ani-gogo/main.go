package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/ani/ani-gogo/config"
	"github.com/ani/ani-gogo/fetcher"
	"github.com/ani/ani-gogo/fetcher/gogoanime"
	"github.com/ani/ani-gogo/logger"
	"github.com/ani/ani-gogo/player"
)

// runtime is built once in Before and shared by every command.
type runtime struct {
	cfg     config.Config
	log     *log.Logger
	client  *http.Client
	fetcher fetcher.Fetcher
	headers map[string]string
	closers []io.Closer
}

const runtimeKey = "runtime"

func rt(c *cli.Context) *runtime {
	return c.App.Metadata[runtimeKey].(*runtime)
}

func (r *runtime) newDecoder() player.Decoder {
	return player.NewManifestDecoder(player.DecoderOptions{
		Client:  r.client,
		Headers: r.headers,
		Logger:  r.log,
	})
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "config file (default " + config.FilePath() + ")",
			EnvVars: []string{"ANI_GOGO_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "anime API base url",
			EnvVars: []string{"ANI_GOGO_BASE_URL"},
		},
		&cli.StringFlag{
			Name:    "referer",
			Usage:   "Referer sent with episode source and video requests",
			EnvVars: []string{"ANI_GOGO_REFERER"},
		},
		&cli.StringFlag{
			Name:    "quality",
			Aliases: []string{"q"},
			Usage:   "preferred quality, e.g. 360p or 1080p",
			EnvVars: []string{"ANI_GOGO_QUALITY"},
		},
		&cli.StringFlag{
			Name:    "player",
			Usage:   "auto, mpv or vlc",
			EnvVars: []string{"ANI_GOGO_PLAYER"},
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "per request timeout",
			EnvVars: []string{"ANI_GOGO_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			EnvVars: []string{"ANI_GOGO_LOG_LEVEL"},
		},
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFile(path)
		if err == nil {
			cfg, err = config.ApplyEnv(cfg, os.LookupEnv)
		}
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	if c.IsSet("base-url") {
		cfg.BaseUrl = c.String("base-url")
	}
	if c.IsSet("referer") {
		cfg.Referer = c.String("referer")
	}
	if c.IsSet("quality") {
		cfg.Quality = c.String("quality")
	}
	if c.IsSet("player") {
		cfg.Player = c.String("player")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = config.Duration(c.Duration("timeout"))
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg, nil
}

// the tui owns the terminal, its logs go to a file in the config folder
func logOutput(c *cli.Context, r *runtime) io.Writer {
	if cmd := c.Args().First(); cmd != "" && cmd != "tui" {
		return os.Stderr
	}
	f, err := os.OpenFile(filepath.Join(config.Folder(), "ani-gogo.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return io.Discard
	}
	r.closers = append(r.closers, f)
	return f
}

func setup(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	r := &runtime{cfg: cfg}
	r.log = logger.New(cfg.LogLevel, logOutput(c, r))
	r.client = gogoanime.NewHTTPClient(cfg.Timeout.Std())
	r.headers = map[string]string{"Referer": cfg.Referer}
	r.fetcher, err = fetcher.GetDefaultFetcher(fetcher.Options{
		BaseUrl:    cfg.BaseUrl,
		Referer:    cfg.Referer,
		Timeout:    cfg.Timeout.Std(),
		CacheTTL:   cfg.CacheTTL.Std(),
		HTTPClient: r.client,
		Logger:     r.log,
	})
	if err != nil {
		return err
	}
	c.App.Metadata[runtimeKey] = r
	return nil
}

func teardown(c *cli.Context) error {
	r, ok := c.App.Metadata[runtimeKey].(*runtime)
	if !ok {
		return nil
	}
	for _, cl := range r.closers {
		cl.Close()
	}
	return nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "ani-gogo",
		Usage:    "search, stream and download anime from the terminal",
		Flags:    globalFlags(),
		Metadata: map[string]interface{}{},
		Before:   setup,
		After:    teardown,
		Action:   runTui,
		Commands: []*cli.Command{
			tuiCommand,
			serveCommand,
			topCommand,
			searchCommand,
			infoCommand,
			sourcesCommand,
			playCommand,
			downloadCommand,
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Alas, there's been an error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
