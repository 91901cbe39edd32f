package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/verdantlabs/greencoach/internal/search"
	"github.com/verdantlabs/greencoach/internal/store"
	"github.com/verdantlabs/greencoach/internal/trainer/core"
)

// ReportsHandler serves stored reports and full-text search over them.
type ReportsHandler struct {
	Store *store.Store
	Index *search.Index
}

func (h *ReportsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(AuthMiddleware(secret))
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.GET("/:id", h.get)
}

func (h *ReportsHandler) list(c echo.Context) error {
	rows, err := h.Store.ListReports(c.Request().Context(), userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if rows == nil {
		rows = []store.ReportRow{}
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *ReportsHandler) get(c echo.Context) error {
	row, err := h.Store.GetReport(c.Request().Context(), c.Param("id"), userID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if c.QueryParam("format") == "markdown" {
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(core.RenderMarkdown(&row.Report)))
	}
	return c.JSON(http.StatusOK, row)
}

func (h *ReportsHandler) search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	hits, err := h.Index.Search(q, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := SearchReportsResponse{Hits: make([]SearchHit, 0, len(hits))}
	// Scope results to the caller: the index is shared across users, so drop
	// hits whose stored row the caller cannot read.
	for _, h2 := range hits {
		if _, err := h.Store.GetReport(c.Request().Context(), h2.ID, userID(c)); err != nil {
			continue
		}
		resp.Hits = append(resp.Hits, SearchHit{ReportID: h2.ID, Score: h2.Score})
	}
	return c.JSON(http.StatusOK, resp)
}
