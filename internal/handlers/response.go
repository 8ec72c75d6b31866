package handlers

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/nimasrn/school-payment/internal/locker"
	"github.com/nimasrn/school-payment/internal/model"
	xhttp "github.com/nimasrn/school-payment/pkg/http"
	"github.com/nimasrn/school-payment/pkg/logger"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode response", "error", err)
		status = xhttp.StatusInternalServerError
		b = []byte(`{"error":"internal error"}`)
	}
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, errorResponse{Error: msg, RequestID: xhttp.RequestID(ctx)})
}

// writeServiceError maps domain errors to HTTP. Unexpected errors are logged
// and hidden from the caller.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	status := statusFor(err)
	if status == xhttp.StatusInternalServerError {
		logger.Error("Request failed", "path", string(ctx.Path()), "request_id", xhttp.RequestID(ctx), "error", err)
		writeError(ctx, status, "internal error")
		return
	}
	writeError(ctx, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return xhttp.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return xhttp.StatusNotFound
	case errors.Is(err, model.ErrUnauthenticated):
		return xhttp.StatusUnauthorized
	case errors.Is(err, model.ErrForbidden):
		return xhttp.StatusForbidden
	case errors.Is(err, model.ErrGatewayUnavailable), errors.Is(err, locker.ErrLockTimeout):
		return xhttp.StatusServiceUnavailable
	case errors.Is(err, model.ErrGatewayRejected):
		return xhttp.StatusBadGateway
	case errors.Is(err, model.ErrAlreadyPaid),
		errors.Is(err, model.ErrNothingOwed),
		errors.Is(err, model.ErrInvoiceClosed):
		return xhttp.StatusConflict
	default:
		return xhttp.StatusInternalServerError
	}
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, bool) {
	v, _ := ctx.UserValue(name).(string)
	id, err := strconv.ParseInt(v, 10, 64)
	return id, err == nil && id > 0
}

func queryInt(ctx *xhttp.RequestCtx, key string, def int) int {
	v := ctx.QueryArgs().Peek(key)
	if len(v) == 0 {
		return def
	}
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return def
	}
	return n
}
