package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/granjas-console/farm"
	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
)

type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindAuth       ErrorKind = "auth"
	KindForbidden  ErrorKind = "forbidden"
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindServer     ErrorKind = "server"
)

var kindSentinels = map[ErrorKind]error{
	KindNetwork:    ierrors.ErrNetwork,
	KindAuth:       ierrors.ErrUnauthenticated,
	KindForbidden:  ierrors.ErrForbidden,
	KindValidation: ierrors.ErrValidation,
	KindNotFound:   ierrors.ErrNotFound,
	KindConflict:   ierrors.ErrConflict,
	KindServer:     ierrors.ErrBackend,
}

// Error is a normalised backend or transport failure. It unwraps to the sentinel of its
// Kind (ierrors.ErrNetwork, ierrors.ErrValidation, ...) and to the underlying cause, if any.
type Error struct {
	Kind    ErrorKind        `json:"kind"`
	Status  int              `json:"status,omitempty"`
	Message string           `json:"message"`
	Fields  farm.FieldErrors `json:"fields,omitempty"`
	Err     error            `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := []error{kindSentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func networkError(req *http.Request, err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: fmt.Sprintf("%s %s: %v", req.Method, req.URL.Redacted(), err),
		Err:     err,
	}
}

// retryable reports whether a GET failing with err is worth repeating.
func retryable(err error) bool {
	apiErr, ok := err.(*Error)
	if !ok {
		return false
	}
	switch apiErr.Kind {
	case KindNetwork:
		return true
	case KindServer:
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	default:
		return KindServer
	}
}

// errorBody covers the two shapes the backend answers with: {"detail": ...} and {"message": ...}.
// detail is either a string or a list of {"loc": [...], "msg": "..."} validation items.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

type validationItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func errorFromResponse(resp *http.Response) *Error {
	apiErr := &Error{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message, apiErr.Fields = parseDetail(body.Detail)
		if apiErr.Message == "" {
			apiErr.Message = body.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return apiErr
}

func parseDetail(raw json.RawMessage) (string, farm.FieldErrors) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	var items []validationItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", nil
	}
	fields := make(farm.FieldErrors, 0, len(items))
	msgs := make([]string, 0, len(items))
	for _, it := range items {
		fe := farm.FieldError{Field: fieldFromLoc(it.Loc), Message: it.Msg}
		fields = append(fields, fe)
		if fe.Field != "" {
			msgs = append(msgs, fe.Field+": "+fe.Message)
		} else {
			msgs = append(msgs, fe.Message)
		}
	}
	return strings.Join(msgs, "; "), fields
}

// fieldFromLoc turns ["body", "nombre"] into "nombre".
func fieldFromLoc(loc []any) string {
	parts := make([]string, 0, len(loc))
	for i, p := range loc {
		if i == 0 && (p == "body" || p == "query" || p == "path") {
			continue
		}
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, ".")
}

// IsStatus reports whether err is an *Error carrying the HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return ierrors.As(err, &apiErr) && apiErr.Status == status
}
