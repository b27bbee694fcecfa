package response

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	json "github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"

	"github.com/curaious/bizops/internal/perrors"
)

// ErrorBody is the wire shape of every failed request.
type ErrorBody struct {
	Error string `json:"error"`
}

// Page is the list envelope. The collection is keyed by the plural resource name.
type Page[T any] struct {
	Items  []T
	Key    string
	Total  int
	Limit  int
	Offset int
}

func (p Page[T]) MarshalJSON() ([]byte, error) {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	return json.Marshal(map[string]any{
		p.Key:    items,
		"total":  p.Total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

type Response[T any] struct {
	ctx     context.Context
	err     *perrors.Err
	Message string
	Data    T
	Status  int
}

func NewResponse[T any](ctx context.Context, msg string, data T) *Response[T] {
	return &Response[T]{
		ctx:     ctx,
		Message: msg,
		Data:    data,
		Status:  http.StatusOK,
	}
}

// WithError sets the error for the response. Errors that are not perrors.Err are
// treated as internal server errors.
func (r *Response[T]) WithError(err error) *Response[T] {
	var perr perrors.Err
	if !errors.As(err, &perr) {
		perr = perrors.NewErrInternalServerError(r.Message, err).(perrors.Err)
	}

	perr.Print(r.ctx)
	r.Status = perr.HttpStatus()
	r.err = &perr

	return r
}

// WithStatus will set the HTTP response status code.
//
// Prefer perrors.Err for failures; this is meant for 201 and friends.
func (r *Response[T]) WithStatus(code int) *Response[T] {
	r.Status = code

	return r
}

// Write will set the `content-type` to `application/json` and write the response to the fasthttp context.
func (r *Response[T]) Write(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("content-type", "application/json")
	ctx.SetStatusCode(r.Status)

	var (
		body []byte
		err  error
	)
	if r.err != nil {
		body, err = json.Marshal(ErrorBody{Error: r.err.Public()})
	} else {
		body, err = json.Marshal(r.Data)
	}
	if err != nil {
		slog.ErrorContext(r.ctx, "Unable to json encode response", slog.Any("error", err))
		ctx.SetStatusCode(http.StatusInternalServerError)
		ctx.SetBodyString(`{"error":"unable to encode response"}`)
		return
	}

	ctx.SetBody(body)
}
