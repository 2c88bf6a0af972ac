package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"podsnip/internal/logging"
	"podsnip/internal/services"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("encoding response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		status = http.StatusConflict
	case errors.Is(err, services.ErrConfiguration):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error("request failed", logging.Error(err))
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}
