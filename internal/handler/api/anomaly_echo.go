package api

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"FinShock/internal/domain/models"
	domsvc "FinShock/internal/domain/service"
	"FinShock/internal/usecase"
	xhttp "FinShock/pkg/http"
	xlogger "FinShock/pkg/logger"
)

// AnomalyEchoHandler serves the detection API. /anomaly/* keeps the wire
// format shared with peer detectors; /api/* uses the response envelope.
type AnomalyEchoHandler struct {
	logger *xlogger.Logger
	uc     *usecase.AnomalyUseCase
}

func NewAnomalyEchoHandler(logger *xlogger.Logger, uc *usecase.AnomalyUseCase) *AnomalyEchoHandler {
	return &AnomalyEchoHandler{logger: logger, uc: uc}
}

func (h *AnomalyEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.POST("/anomaly/detect", h.Detect)
	e.POST("/anomaly/detect/batch", h.DetectBatch)

	g := e.Group("/api")
	g.GET("/anomaly", h.FromCandles)
	g.GET("/anomaly/history", h.History)
}

func (h *AnomalyEchoHandler) Health(c echo.Context) error {
	return xhttp.RawResponse(c, map[string]string{"status": "ok"})
}

func (h *AnomalyEchoHandler) Detect(c echo.Context) error {
	req := &models.DetectRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	d, err := h.uc.Detect(c.Request().Context(), *req, models.SourceHTTP)
	if err != nil {
		return h.fail(c, "detect", err)
	}
	c.Response().Header().Set("X-Detection-ID", d.ID)
	return xhttp.RawResponse(c, models.DetectResponse{Anomalies: d.Anomalies})
}

func (h *AnomalyEchoHandler) DetectBatch(c echo.Context) error {
	req := &models.BatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.uc.DetectBatch(c.Request().Context(), req.Items)
	if err != nil {
		return h.fail(c, "detect_batch", err)
	}
	return xhttp.RawResponse(c, res)
}

func (h *AnomalyEchoHandler) FromCandles(c echo.Context) error {
	req := &models.AnomalyQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.uc.FromCandles(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "from_candles", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *AnomalyEchoHandler) History(c echo.Context) error {
	req := &models.HistoryQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.uc.Recent(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		return h.fail(c, "history", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// fail maps usecase errors onto HTTP statuses. Only unexpected errors are
// logged; client mistakes are visible in the request log already.
func (h *AnomalyEchoHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, domsvc.ErrInvalidSeries):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	case errors.Is(err, usecase.ErrBatchTooLarge):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithField("items"))
	case errors.Is(err, usecase.ErrBadRange):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithField("from"))
	case errors.Is(err, usecase.ErrFeaturesUnavailable):
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError(err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("detection timed out"))
	}
	h.logger.Error("anomaly usecase error", xlogger.String("op", op), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

var _ xhttp.Handler = (*AnomalyEchoHandler)(nil)
