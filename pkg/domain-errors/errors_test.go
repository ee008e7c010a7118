package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("finds code through wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeNotBooked, "no booking"))
		assert.True(t, HasCode(err, CodeNotBooked))
		assert.False(t, HasCode(err, CodeSlotConflict))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})

	t.Run("nil has no code", func(t *testing.T) {
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeInternal, "failed to reserve slot")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to reserve slot: connection reset", err.Error())
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:          http.StatusBadRequest,
		CodeNotRegistered:       http.StatusNotFound,
		CodeSlotConflict:        http.StatusConflict,
		CodeAlreadyBooked:       http.StatusConflict,
		CodeNotBooked:           http.StatusNotFound,
		CodeMigrationInProgress: http.StatusServiceUnavailable,
		CodeForbidden:           http.StatusForbidden,
		CodeInternal:            http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), string(code))
	}
}
