package api

import (
	stderrors "errors"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ani/ani-gogo/fetcher"
)

type AppConfig struct {
	// fiber access log on stdout
	AccessLog bool
}

// creates a new fiber app with the goccy codec
// and setup middlewares
func InitApp(cfg AppConfig) *fiber.App {
	f := fiber.New(fiber.Config{
		AppName:               "Ani-gogo",
		EnableIPValidation:    true,
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          errorHandler,
	})
	var once sync.Once

	once.Do(func() {
		if cfg.AccessLog {
			f.Use(logger.New(logger.Config{
				Format: "[${ip}]:${port} ${status} - ${method} ${path}\n",
			}))
		}
		f.Use(recover.New())
	})

	return f
}

type messageResponse struct {
	Message string `json:"message"`
}

// errorHandler turns upstream failures into page-level JSON errors.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case stderrors.As(err, &fe):
		code = fe.Code
	case stderrors.Is(err, fetcher.ErrEmptyResult):
		code = fiber.StatusNotFound
	case stderrors.Is(err, fetcher.ErrNetwork), stderrors.Is(err, fetcher.ErrSchemaMismatch):
		code = fiber.StatusBadGateway
	}
	return c.Status(code).JSON(messageResponse{Message: err.Error()})
}
