package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	gomediacache "github.com/dgduncan/go-media-cache"
	"github.com/dgduncan/go-media-cache/gif"
)

// Handler holds the HTTP handlers
type Handler struct {
	registry *gif.Registry
	media    map[string]*http.Client
	logger   *slog.Logger
}

type widthRequest struct {
	Width int `json:"width"`
}

type searchRequest struct {
	Query    string `json:"query"`
	Width    int    `json:"width"`
	Debounce bool   `json:"debounce"`
}

type resizeRequest struct {
	Width    int  `json:"width"`
	Debounce bool `json:"debounce"`
}

type selectRequest struct {
	ID string `json:"id"`
}

type scrollResponse struct {
	Issued bool `json:"issued"`
}

var errNoSearch = errors.New("gif search is not configured")

// NewHandler creates a new handler over the given registry and media clients
func NewHandler(registry *gif.Registry, media map[string]*http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		media:    media,
		logger:   logger,
	}
}

// Health handles GET /healthz
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Create handles POST /pickers
func (h *Handler) Create(c echo.Context) error {
	if h.registry == nil {
		return handleError(c, errNoSearch)
	}

	s := h.registry.Create()
	return c.JSON(http.StatusCreated, map[string]string{"id": s.ID()})
}

// Open handles POST /pickers/:id/open
func (h *Handler) Open(c echo.Context) error {
	if h.registry == nil {
		return handleError(c, errNoSearch)
	}

	var req widthRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	s := h.registry.GetOrCreate(c.Param("id"))
	if err := s.Open(req.Width); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusAccepted, s.Snapshot())
}

// Search handles POST /pickers/:id/search
func (h *Handler) Search(c echo.Context) error {
	if h.registry == nil {
		return handleError(c, errNoSearch)
	}

	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	s := h.registry.GetOrCreate(c.Param("id"))

	var err error
	if req.Debounce {
		err = s.Input(req.Query, req.Width)
	} else {
		err = s.Search(req.Query, req.Width)
	}
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusAccepted, s.Snapshot())
}

// Resize handles POST /pickers/:id/resize
func (h *Handler) Resize(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return handleError(c, err)
	}

	var req resizeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	if req.Debounce {
		err = s.Resize(req.Width)
	} else {
		err = s.Relayout(req.Width)
	}
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusAccepted, s.Snapshot())
}

// Scroll handles POST /pickers/:id/scroll
func (h *Handler) Scroll(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return handleError(c, err)
	}

	var req gif.Scroll
	if err := c.Bind(&req); err != nil {
		return err
	}

	issued, err := s.LoadMore(req)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, scrollResponse{Issued: issued})
}

// Select handles POST /pickers/:id/select
func (h *Handler) Select(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return handleError(c, err)
	}

	var req selectRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	item, err := s.Select(req.ID)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

// ClearSelection handles DELETE /pickers/:id/select
func (h *Handler) ClearSelection(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return handleError(c, err)
	}

	s.ClearSelection()
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /pickers/:id. With ?wait=true it first waits for the
// outstanding request to settle.
func (h *Handler) Get(c echo.Context) error {
	s, err := h.lookup(c)
	if err != nil {
		return handleError(c, err)
	}

	if c.QueryParam("wait") == "true" {
		if err := s.Wait(c.Request().Context()); err != nil {
			return handleError(c, err)
		}
	}
	return c.JSON(http.StatusOK, s.Snapshot())
}

// Remove handles DELETE /pickers/:id
func (h *Handler) Remove(c echo.Context) error {
	if h.registry == nil {
		return handleError(c, errNoSearch)
	}

	found, err := h.registry.Remove(c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	if !found {
		return handleError(c, errSessionNotFound)
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveAll handles DELETE /pickers
func (h *Handler) RemoveAll(c echo.Context) error {
	if h.registry == nil {
		return handleError(c, errNoSearch)
	}

	if err := h.registry.RemoveAll(); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Media handles GET /media?url=&cache=
func (h *Handler) Media(c echo.Context) error {
	name := c.QueryParam("cache")
	if name == "" {
		name = DefaultMedia
	}
	client, ok := h.media[name]
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown cache "+name)
	}

	raw := c.QueryParam("url")
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url must be an absolute http(s) url")
	}

	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return handleError(c, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return handleError(c, err)
	}
	defer resp.Body.Close()

	for _, k := range []string{"Content-Length", "X-Cache"} {
		if v := resp.Header.Get(k); v != "" {
			c.Response().Header().Set(k, v)
		}
	}
	return c.Stream(resp.StatusCode, resp.Header.Get(echo.HeaderContentType), resp.Body)
}

func (h *Handler) lookup(c echo.Context) (*gif.Session, error) {
	if h.registry == nil {
		return nil, errNoSearch
	}

	s, ok := h.registry.Lookup(c.Param("id"))
	if !ok {
		return nil, errSessionNotFound
	}
	return s, nil
}

var errSessionNotFound = errors.New("picker not found")

// handleError converts errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}

	message := err.Error()
	if kind == "internal_error" {
		message = "an unexpected error occurred"
	}

	return c.JSON(status, map[string]any{
		"error": map[string]any{
			"type":    kind,
			"message": message,
		},
	})
}

func classify(err error) (int, string) {
	var (
		apiErr    *gif.APIError
		fetchErr  *gomediacache.FetchError
		decodeErr *gomediacache.DecodeError
		cacheErr  *gomediacache.CacheIOError
	)

	switch {
	case errors.Is(err, errSessionNotFound), errors.Is(err, gif.ErrItemNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, gif.ErrSessionClosed):
		return http.StatusGone, "closed"
	case errors.Is(err, errNoSearch):
		return http.StatusServiceUnavailable, "unavailable"
	case gomediacache.IsCancelled(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "provider_error"
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "fetch_error"
	case errors.As(err, &decodeErr):
		return http.StatusBadGateway, "decode_error"
	case errors.As(err, &cacheErr):
		return http.StatusInternalServerError, "cache_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
