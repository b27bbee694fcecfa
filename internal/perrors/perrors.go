package perrors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
)

type ErrCode struct {
	Code   string `json:"code"`
	Status int    `json:"status"`
}

var (
	ErrCodeInvalidRequest   ErrCode = ErrCode{"invalid_request", http.StatusBadRequest}
	ErrCodeUnauthorized             = ErrCode{"unauthorized", http.StatusUnauthorized}
	ErrCodeForbidden                = ErrCode{"forbidden", http.StatusForbidden}
	ErrCodeNotFound                 = ErrCode{"not_found", http.StatusNotFound}
	ErrCodeConflict                 = ErrCode{"conflict", http.StatusConflict}
	ErrCodeMethodNotAllowed         = ErrCode{"method_not_allowed", http.StatusMethodNotAllowed}
	ErrCodeInternalServer           = ErrCode{"internal_server_error", http.StatusInternalServerError}
	ErrCodeBadGateway               = ErrCode{"bad_gateway", http.StatusBadGateway}
)

type Err struct {
	Message    string                   `json:"-"`
	Err        string                   `json:"error"`
	Code       ErrCode                  `json:"-"`
	Stacktrace []string                 `json:"-"`
	Args       []map[string]interface{} `json:"args"`
}

func (e Err) Error() string {
	return e.Err
}

func (e Err) HttpStatus() int {
	return e.Code.Status
}

// Public is the message returned to the caller. Server side failures carry the
// underlying error so operators can see what the datastore or upstream said.
func (e Err) Public() string {
	msg := e.Message
	if msg == "" {
		msg = e.Err
	}
	if e.Code.Status >= http.StatusInternalServerError && e.Err != "" && e.Err != msg {
		return msg + ": " + e.Err
	}
	return msg
}

func (e Err) Print(ctx context.Context) {
	args := []any{slog.Any("error", e.Error()), slog.String("code", e.Code.Code)}
	if len(e.Args) > 0 {
		for k, v := range e.Args[0] {
			args = append(args, slog.Any(k, v))
		}
	}

	if e.Code.Status < http.StatusInternalServerError {
		slog.WarnContext(ctx, e.Message, args...)
		return
	}

	args = append(args, slog.Any("stacktrace", e.Stacktrace))
	slog.ErrorContext(ctx, e.Message, args...)
}

func New(code ErrCode, msg string, err error, args ...map[string]interface{}) error {
	pc := make([]uintptr, 20)
	count := runtime.Callers(2, pc)
	frames := runtime.CallersFrames(pc[:count])

	var stacktrace []string
	for frame, hasMore := frames.Next(); hasMore; frame, hasMore = frames.Next() {
		stacktrace = append(stacktrace, fmt.Sprintf("%s:%d", frame.File, frame.Line))
	}

	errString := msg
	if err != nil {
		errString = err.Error()
	}

	return Err{
		Code:       code,
		Message:    msg,
		Err:        errString,
		Stacktrace: stacktrace,
		Args:       args,
	}
}

func NewErrInvalidRequest(msg string, err error, args ...map[string]interface{}) error {
	return New(ErrCodeInvalidRequest, msg, err, args...)
}

func NewErrInternalServerError(msg string, err error, args ...map[string]interface{}) error {
	return New(ErrCodeInternalServer, msg, err, args...)
}

func NewErrNotFound(msg string, err error) error {
	return New(ErrCodeNotFound, msg, err)
}

func NewErrBadGateway(msg string, err error) error {
	return New(ErrCodeBadGateway, msg, err)
}

// Status returns the HTTP status carried by err, or 500 when err is not an Err.
func Status(err error) int {
	var perr Err
	if errors.As(err, &perr) {
		return perr.HttpStatus()
	}
	return http.StatusInternalServerError
}
