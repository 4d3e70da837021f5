package main

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/kinotek/vecsearch/config"
	"github.com/kinotek/vecsearch/engine"
	"github.com/kinotek/vecsearch/search"
)

// apiHandler exposes the search pipeline over HTTP.
type apiHandler struct {
	coord  *search.Coordinator
	cfg    *config.Config
	logger *slog.Logger
}

func (h *apiHandler) Register(api fiber.Router) {
	api.Get("/health", h.health)
	api.Post("/init", h.init)
	api.Post("/attach", h.attach)
	api.Post("/detach", h.detach)
	api.Post("/search", h.search)
	api.Post("/lookup", h.lookup)
	api.Post("/query", h.query)
	api.Post("/embed", h.embed)
	api.Post("/encoder/init", h.initEncoder)
	api.Post("/encoder/dispose", h.dispose)
}

func (h *apiHandler) health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "healthy",
		"app":        h.cfg.AppName,
		"generation": h.coord.Generation(),
	})
}

func (h *apiHandler) init(c fiber.Ctx) error {
	var body struct {
		URL  string `json:"url"`
		Base string `json:"base"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.URL == "" {
		body.URL = h.cfg.DatabaseImageURL
	}
	result, err := h.coord.Init(c.Context(), body.URL, body.Base)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"total_entities": result.TotalEntities,
		"dimensions":     result.Dimensions,
		"generation":     h.coord.Generation(),
	})
}

func (h *apiHandler) attach(c fiber.Ctx) error {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.URL == "" {
		body.URL = h.cfg.EmbeddingsImageURL
	}
	result, err := h.coord.Attach(c.Context(), body.URL)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"attached_count": result.AttachedCount,
		"dimensions":     result.Dimensions,
		"model":          result.Model,
	})
}

func (h *apiHandler) detach(c fiber.Ctx) error {
	result, err := h.coord.Detach(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"was_attached": result.WasAttached})
}

func (h *apiHandler) search(c fiber.Ctx) error {
	var body struct {
		Query      string `json:"query"`
		K          int    `json:"k"`
		Filter     string `json:"filter"`
		FilterArgs []any  `json:"filter_args"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Query == "" {
		return badRequest(c, "query is required")
	}
	if body.K <= 0 {
		body.K = 10
	}
	rows, err := h.coord.Search(c.Context(), body.Query, body.K, body.Filter, body.FilterArgs...)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"results": rows})
}

func (h *apiHandler) lookup(c fiber.Ctx) error {
	var body struct {
		IDs []int64 `json:"ids"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	rows, err := h.coord.Lookup(c.Context(), body.IDs)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"results": rows})
}

func (h *apiHandler) query(c fiber.Ctx) error {
	var body struct {
		Query string `json:"query"`
		Args  []any  `json:"args"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Query == "" {
		return badRequest(c, "query is required")
	}
	rows, err := h.coord.Exec(c.Context(), body.Query, body.Args...)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"results": rows})
}

func (h *apiHandler) embed(c fiber.Ctx) error {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Text == "" {
		return badRequest(c, "text is required")
	}
	vec, err := h.coord.Embed(c.Context(), body.Text)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"vector": vec, "dimensions": len(vec)})
}

func (h *apiHandler) initEncoder(c fiber.Ctx) error {
	var body struct {
		Variant string `json:"variant"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	result, err := h.coord.InitEncoder(c.Context(), body.Variant)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"variant": result.Variant})
}

func (h *apiHandler) dispose(c fiber.Ctx) error {
	if err := h.coord.Dispose(c.Context()); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// fail maps pipeline errors onto HTTP statuses: lifecycle violations are
// conflicts, bad vectors are client errors, everything else is internal.
func (h *apiHandler) fail(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotInitialized), errors.Is(err, engine.ErrNoEmbeddings):
		status = fiber.StatusConflict
	case engine.IsDimensionError(err):
		status = fiber.StatusBadRequest
	case errors.Is(err, search.ErrStaleResponse):
		status = fiber.StatusConflict
	}
	h.logger.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
