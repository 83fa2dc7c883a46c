// Package api exposes a calendar over HTTP with fiber.
package api

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cyp0633/calrecur/calendar"
)

// Options configures the API server.
type Options struct {
	Logger *slog.Logger
	// HorizonDays is the default window of GET /api/next.
	HorizonDays int
	// CalendarName is written into iCalendar exports.
	CalendarName string
}

// Server serves one calendar.
type Server struct {
	cal     *calendar.Calendar
	logger  *slog.Logger
	horizon int
	name    string
}

// New creates an API server for cal.
func New(cal *calendar.Calendar, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 7
	}
	if opts.CalendarName == "" {
		opts.CalendarName = "calrecur"
	}
	return &Server{cal: cal, logger: opts.Logger, horizon: opts.HorizonDays, name: opts.CalendarName}
}

// App builds a fiber application with every route registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "calrecur",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	app.Use(s.logRequests)
	s.Register(app)
	return app
}

// Register adds the routes to app.
func (s *Server) Register(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "dirty": s.cal.Dirty()})
	})

	api := app.Group("/api")
	api.Get("/occurrences", s.getOccurrences)
	api.Get("/today", s.getToday)
	api.Get("/next", s.getNext)
	api.Get("/calendar.ics", s.getICS)
	api.Post("/flush", s.postFlush)

	events := api.Group("/events")
	events.Get("/", s.listEvents)
	events.Post("/", s.createEvent)
	events.Get("/:id", s.getEvent)
	events.Patch("/:id", s.editEvent)
	events.Delete("/:id", s.deleteEvent)
	events.Get("/:id/upcoming", s.getUpcoming)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	s.logger.Info("received request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", time.Since(start))
	return err
}

// errorHandler renders every error as the JSON envelope used by the API.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code == fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
		"code":    code,
	})
}

// fail maps calendar errors to HTTP statuses.
func fail(err error) error {
	switch calendar.KindOf(err) {
	case calendar.KindDefinitionNotFound:
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case calendar.KindInvalidRange:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case calendar.KindInvalidDefinition:
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case calendar.KindPersistence:
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}

// committed renders the result of a mutation. A persistence failure is not
// an error for the client: the change is live and will be saved on retry.
func (s *Server) committed(c *fiber.Ctx, err error, body fiber.Map) error {
	if err != nil && !calendar.IsPersistenceFailure(err) {
		return fail(err)
	}
	body["success"] = true
	body["persisted"] = err == nil
	if err != nil {
		body["warning"] = "change applied but not saved; it will be retried"
	}
	return c.JSON(body)
}
