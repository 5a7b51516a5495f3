package sidecar

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/agrafes/internal/apierr"
)

// okEnvelope is the standard success response body shape (spec.md §6):
// the same ok/api_version/status scaffold as apierr.Envelope, with the
// operation's own data flattened in under "data".
type okEnvelope struct {
	OK         bool        `json:"ok"`
	APIVersion string      `json:"api_version"`
	Status     string      `json:"status"`
	Data       interface{} `json:"data,omitempty"`
}

// respondJSON writes a success envelope with the ordinary "ok" status.
// Operations whose own outcome belongs in a different envelope status
// (accepted, warnings, listening, already_running) use
// respondJSONStatus instead.
func (s *Server) respondJSON(w http.ResponseWriter, httpStatus int, data interface{}) {
	s.respondJSONStatus(w, httpStatus, "ok", data)
}

// respondJSONStatus writes a success envelope with an explicit envelope
// status (spec.md §6: ok | warnings | accepted | listening |
// already_running).
func (s *Server) respondJSONStatus(w http.ResponseWriter, httpStatus int, envStatus string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	if err := json.NewEncoder(w).Encode(okEnvelope{OK: true, APIVersion: apierr.APIVersion, Status: envStatus, Data: data}); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to encode response body", zap.Error(err))
		}
	}
}

// respondErr maps a domain error onto its taxonomy HTTP status and writes
// the standard error envelope. Non-*apierr.Error values are treated as
// internal errors so a handler bug never leaks a raw Go error string as a
// 200 or an unmapped status.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Internal("%v", err)
	}
	if apiErr.Code == apierr.CodeInternalError && s.logger != nil {
		s.logger.Error("request failed", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(apierr.ToEnvelope(apierr.APIVersion, apiErr))
}

// decodeJSON decodes the request body into dst, returning a BAD_REQUEST
// apierr on malformed JSON.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierr.BadRequest("invalid request body: %v", err)
	}
	return nil
}
