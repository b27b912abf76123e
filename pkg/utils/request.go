package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxBodyBytes = 1 << 20

// DecodeJSONBody decodes a single JSON object into dst, rejecting unknown
// fields and trailing data. The returned status is what the caller should
// answer with on error.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) (int, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return http.StatusUnsupportedMediaType, errors.New("Content-Type header is not application/json")
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr *json.SyntaxError
			typeErr   *json.UnmarshalTypeError
			sizeErr   *http.MaxBytesError
		)
		switch {
		case errors.As(err, &syntaxErr):
			return http.StatusBadRequest, fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return http.StatusBadRequest, errors.New("malformed JSON")
		case errors.As(err, &typeErr):
			return http.StatusBadRequest, fmt.Errorf("invalid value for field %q", typeErr.Field)
		case errors.Is(err, io.EOF):
			return http.StatusBadRequest, errors.New("request body must not be empty")
		case errors.As(err, &sizeErr):
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body must not exceed %d bytes", maxBodyBytes)
		default:
			return http.StatusBadRequest, err
		}
	}

	if dec.More() {
		return http.StatusBadRequest, errors.New("request body must contain a single JSON object")
	}
	return http.StatusOK, nil
}
