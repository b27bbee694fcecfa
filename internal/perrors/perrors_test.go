package perrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_CarriesStatus(t *testing.T) {
	err := New(ErrCodeBadGateway, "ServiceTitan request failed", errors.New("503 upstream"))
	assert.Equal(t, http.StatusBadGateway, Status(err))
	assert.Equal(t, "503 upstream", err.Error())
	assert.NotEmpty(t, err.(Err).Stacktrace)
}

func TestStatus_WrappedAndPlain(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewErrNotFound("Invoice not found", nil))
	assert.Equal(t, http.StatusNotFound, Status(wrapped))
	assert.Equal(t, http.StatusInternalServerError, Status(errors.New("boom")))
}

func TestPublic(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"client error keeps message", NewErrInvalidRequest("name is required", errors.New("empty")), "name is required"},
		{"server error appends cause", NewErrInternalServerError("Failed to list invoices", errors.New("conn refused")), "Failed to list invoices: conn refused"},
		{"nil cause", New(ErrCodeForbidden, "forbidden", nil), "forbidden"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.(Err).Public())
		})
	}
}
