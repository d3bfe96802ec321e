// Generic request-body decoding shared by the handful of JSON-bodied
// endpoints this surface exposes.
package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Validatable is implemented by request types that can validate their
// fields after decoding.
type Validatable interface {
	Validate() error
}

// readAndDecodeBody reads the request body and decodes JSON into input.
// Unknown JSON fields are rejected. Returns false if an error was written
// to the response.
func readAndDecodeBody[In Validatable](w http.ResponseWriter, r *http.Request, input In) bool {
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		writeError(w, badRequest("failed to read request body"))
		return false
	}
	if len(body) == 0 {
		return true
	}
	d := json.NewDecoder(bytes.NewReader(body))
	d.DisallowUnknownFields()
	if err := d.Decode(input); err != nil {
		slog.Error("failed to decode request body", "err", err)
		writeError(w, badRequest("invalid request body"))
		return false
	}
	return true
}
