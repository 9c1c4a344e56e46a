// Package apiresp writes the console's JSON envelope.
package apiresp

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
)

type ErrorPayload struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type Meta struct {
	RequestID string `json:"request_id,omitempty"`
}

type Envelope struct {
	OK    bool          `json:"ok"`
	Data  any           `json:"data,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
	Meta  Meta          `json:"meta"`
}

func WriteOK(w http.ResponseWriter, r *http.Request, status int, data any) {
	Write(w, r, status, true, data, "")
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	Write(w, r, status, false, nil, msg)
}

// WriteInvalid answers 400 with the failing field names mapped to the rule
// they broke.
func WriteInvalid(w http.ResponseWriter, r *http.Request, msg string, fields map[string]string) {
	res := envelope(r, http.StatusBadRequest, false, nil, msg)
	res.Error.Fields = fields
	encode(w, http.StatusBadRequest, res)
}

func Write(w http.ResponseWriter, r *http.Request, status int, ok bool, data any, errMsg string) {
	encode(w, status, envelope(r, status, ok, data, errMsg))
}

func envelope(r *http.Request, status int, ok bool, data any, errMsg string) Envelope {
	res := Envelope{
		OK: ok,
		Meta: Meta{
			RequestID: middleware.GetReqID(r.Context()),
		},
	}
	if ok {
		res.Data = data
	} else {
		if errMsg == "" {
			errMsg = http.StatusText(status)
		}
		res.Error = &ErrorPayload{
			Code:    codeFromStatus(status),
			Message: errMsg,
		}
	}
	return res
}

func encode(w http.ResponseWriter, status int, res Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

func codeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusGatewayTimeout:
		return "upstream_timeout"
	default:
		if status >= 200 && status < 300 {
			return ""
		}
		return "error"
	}
}
