package server

import (
	stderrors "errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/hpungsan/glean/internal/errors"
)

// maxBodyBytes caps request bodies; captured HTML can be large.
const maxBodyBytes = 16 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message, Status: status}})
}

// writeError renders err as a JSON error. Unknown and internal errors are logged
// and reported without their details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ge, ok := errors.As(err)
	if !ok || ge.Code == errors.ErrInternal {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeErrorBody(w, http.StatusInternalServerError, string(errors.ErrInternal), "internal error")
		return
	}
	writeErrorBody(w, ge.Status, string(ge.Code), ge.Message)
}

// decodeBody decodes a JSON request body into dst. An empty body leaves dst unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.NewInvalidRequest("request body too large")
		}
		return errors.NewInvalidRequest("failed to read body: " + err.Error())
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
