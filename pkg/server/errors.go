package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/faults"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// respondError maps an error kind to a status code. Internal details are
// logged but not leaked; everything else surfaces its message.
func (s *Server) respondError(c echo.Context, err error) error {
	kind := faults.KindOf(err)
	status := http.StatusInternalServerError
	msg := err.Error()

	switch kind {
	case faults.KindNotFound:
		status = http.StatusNotFound
	case faults.KindConflict:
		status = http.StatusConflict
	case faults.KindValidation, faults.KindInvalidFormat, faults.KindVirusDetected:
		status = http.StatusUnprocessableEntity
	default:
		s.logger.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	return c.JSON(status, errorBody{Error: msg, Kind: string(kind)})
}
