// Package request holds the decode-and-validate steps every JSON handler
// repeats. Each helper writes the 400 response itself and reports whether
// the handler may continue.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/coursemart-api/internal/utils/response"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// validate is shared by all handlers; it is safe for concurrent use.
var validate = validator.New()

// DecodeJSON decodes the body into v. An empty body or malformed JSON
// produces a 400 and false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		response.WriteJSON(w, http.StatusBadRequest,
			response.GeneralError(errors.New("request body is empty")))
		return false
	}
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return false
	}
	return true
}

// Validate checks the validate:"..." tags of v.
func Validate(w http.ResponseWriter, v any) bool {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(verrs))
			return false
		}
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return false
	}
	return true
}

// Limit parses the optional ?limit= query parameter. Absent means 0 (no
// cap); anything but a non-negative integer is a 400.
func Limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		response.WriteJSON(w, http.StatusBadRequest,
			response.GeneralError(fmt.Errorf("invalid limit %q: must be a non-negative integer", raw)))
		return 0, false
	}
	return n, true
}
