package api

import (
	"context"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/pkg/errors"

	"github.com/ani/ani-gogo/fetcher"
	"github.com/ani/ani-gogo/logger"
)

type ServerConfig struct {
	// ShowStartBanner indicates whether to show or hide the server start console message.
	ShowStartBanner bool

	// HttpAddr is the TCP address to listen for the HTTP server (eg. `127.0.0.1:3000`).
	HttpAddr string

	// AllowedOrigins is an optional list of CORS origins (default to "*").
	AllowedOrigins []string

	TimeToWaitBeforeGracefulShutdown time.Duration

	Fetcher   fetcher.Fetcher
	Quality   string
	AccessLog bool
	Logger    *log.Logger
}

// NewApp builds the fiber app with cors and every route registered.
func NewApp(cfg *ServerConfig) *fiber.App {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	app := InitApp(AppConfig{AccessLog: cfg.AccessLog})
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: strings.Join([]string{http.MethodGet, http.MethodHead}, ","),
	}))
	InitiateRoutes(app, RouteConfig{Fetcher: cfg.Fetcher, Quality: cfg.Quality, Logger: cfg.Logger})
	return app
}

// Serve blocks until the server stops. An interrupt, or ctx being done,
// shuts it down gracefully.
func Serve(ctx context.Context, cfg *ServerConfig) (*http.Server, error) {
	l := logger.OrDefault(cfg.Logger)
	app := NewApp(cfg)

	// base request context used for cancelling long running requests
	baseCtx, cancelBaseCtx := context.WithCancel(context.Background())
	defer cancelBaseCtx()

	server := &http.Server{
		Handler:           adaptor.FiberApp(app),
		ReadTimeout:       10 * time.Minute,
		ReadHeaderTimeout: 30 * time.Second,
		Addr:              cfg.HttpAddr,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}

	if cfg.ShowStartBanner {
		printBanner(server.Addr)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	go func() {
		select {
		case <-sig:
		case <-ctx.Done():
		case <-baseCtx.Done():
			return
		}
		// wait for in-flight handlers up to 5 seconds before exit
		ttw := cfg.TimeToWaitBeforeGracefulShutdown
		if ttw == 0 {
			ttw = time.Second * 5
		}
		l.Info("gracefully shutting down", "wait", ttw)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ttw)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			l.Error("shutdown", "err", err)
		}
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return server, nil
	}
	return server, errors.WithStack(err)
}

func printBanner(addr string) {
	schema := "http"

	date := new(strings.Builder)
	stdlog.New(date, "", stdlog.LstdFlags).Print()

	bold := color.New(color.Bold).Add(color.FgGreen)
	bold.Printf(
		"%s Server started at %s\n",
		strings.TrimSpace(date.String()),
		color.CyanString("%s://%s", schema, addr),
	)

	regular := color.New()
	regular.Printf("├─ REST API: %s\n", color.CyanString("%s://%s%s/", schema, addr, baseUrl))
	regular.Printf("├─ Top airing API: %s\n", color.CyanString("%s://%s%s", schema, addr, topAiringUrl))
	regular.Printf("├─ Search API: %s\n", color.CyanString("%s://%s%s?q=", schema, addr, searchAnimeUrl))
	regular.Printf("└─ Episode sources API: %s\n", color.CyanString("%s://%s%s", schema, addr, episodeSourcesUrl))
	fmt.Println()
}
