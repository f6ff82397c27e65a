package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/service"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names in violations.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into v and runs struct validation. On
// failure it writes the response and returns false.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
			return false
		}
		respondValidation(w, []service.Violation{{
			Loc: []string{"body"}, Msg: err.Error(), Type: "value_error.read",
		}}, nil)
		return false
	}

	if err := json.Unmarshal(raw, v); err != nil {
		violations := decodeViolations(err)
		log.Printf("[httpserver] %s %s validation error: %v", r.Method, r.URL.Path, err)
		respondValidation(w, violations, echoBody(raw))
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			respondServiceError(w, r, err)
			return false
		}
		violations := make([]service.Violation, 0, len(verrs))
		for _, fe := range verrs {
			violations = append(violations, fieldViolation(fe))
		}
		log.Printf("[httpserver] %s %s validation error: %v", r.Method, r.URL.Path, err)
		respondValidation(w, violations, echoBody(raw))
		return false
	}
	return true
}

func decodeViolations(err error) []service.Violation {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return []service.Violation{{
			Loc:  []string{"body", strconv.FormatInt(syntaxErr.Offset, 10)},
			Msg:  syntaxErr.Error(),
			Type: "value_error.jsondecode",
		}}
	case errors.As(err, &typeErr):
		loc := []string{"body"}
		if typeErr.Field != "" {
			loc = append(loc, strings.Split(typeErr.Field, ".")...)
		}
		name := typeName(typeErr.Type)
		if typeErr.Field == "" {
			name = "dict"
		}
		return []service.Violation{{
			Loc:  loc,
			Msg:  "value is not a valid " + name,
			Type: "type_error." + name,
		}}
	default:
		// Empty bodies surface as io.ErrUnexpectedEOF or "unexpected end of JSON input".
		return []service.Violation{{
			Loc:  []string{"body"},
			Msg:  err.Error(),
			Type: "value_error.jsondecode",
		}}
	}
}

func fieldViolation(fe validator.FieldError) service.Violation {
	if fe.Tag() == "required" {
		return service.Violation{
			Loc:  []string{"body", fe.Field()},
			Msg:  "field required",
			Type: "value_error.missing",
		}
	}
	return service.Violation{
		Loc:  []string{"body", fe.Field()},
		Msg:  fe.Error(),
		Type: "value_error." + fe.Tag(),
	}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.String:
		return "str"
	case reflect.Bool:
		return "bool"
	default:
		return t.String()
	}
}

// echoBody returns the received body for the 422 response: parsed JSON when
// possible, the raw text otherwise.
func echoBody(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return string(raw)
}

// respondJSON encodes before writing the header so an unencodable payload
// becomes a 500 instead of a truncated success.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[httpserver] encode response: %v", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{
			"error":  msgInternal,
			"code":   codeInternal,
			"detail": msgInternal,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// respondError writes {"error","code","detail"}; detail repeats error for
// older clients that only read detail.
func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error":  msg,
		"code":   code,
		"detail": msg,
	})
}

func respondValidation(w http.ResponseWriter, violations []service.Violation, body interface{}) {
	if violations == nil {
		violations = []service.Violation{}
	}
	respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"detail": violations,
		"body":   body,
		"code":   codeValidation,
	})
}
