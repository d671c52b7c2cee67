package server

import (
	"encoding/json"
	"net/http"

	"github.com/Lipoic/Lipoic-Server/response"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := jsonEncode(w, body); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

// writeOK sends data wrapped in the response envelope.
func writeOK[T any](w http.ResponseWriter, data T) {
	writeJSON(w, http.StatusOK, response.OK(data))
}

// writeDone sends a success envelope without data.
func writeDone(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, response.Response[struct{}]{Code: response.Ok})
}

func writeFailure(w http.ResponseWriter, code response.Code) {
	writeJSON(w, response.HTTPStatus(code), response.Fail(code))
}

// writeError maps err to its code. The cause is never sent to the client.
func writeError(w http.ResponseWriter, err error) {
	writeFailure(w, response.CodeOf(err))
}

func jsonEncode(w http.ResponseWriter, body any) error {
	return json.NewEncoder(w).Encode(body)
}
