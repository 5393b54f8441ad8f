package compliance

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carebridge/carebridge/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/audits/run", h.Run)
	api.GET("/audits/history", h.History)
}

type runRequest struct {
	Standards []string `json:"standards"`
}

func (h *Handler) Run(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.RunAudit(c.Request().Context(), req.Standards)
	if err != nil {
		if errors.Is(err, ErrUnknownStandard) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) History(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
