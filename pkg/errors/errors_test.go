package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("create booking: %w", Clone(ErrBookingConflict, "slot taken"))
	appErr := FromError(wrapped)
	assert.Equal(t, "BOOKING_CONFLICT", appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "slot taken", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
	assert.Nil(t, FromError(nil))
}

func TestIsMatchesByCode(t *testing.T) {
	clone := Clone(ErrNotFound, "teacher not found")
	assert.True(t, errors.Is(clone, ErrNotFound))
	assert.False(t, errors.Is(clone, ErrForbidden))
}

func TestWithDetails(t *testing.T) {
	detailed := ErrSlotUnavailable.WithDetails(map[string]interface{}{"reason": "no_matching_window"})
	assert.Equal(t, "no_matching_window", detailed.Details["reason"])
	assert.Nil(t, ErrSlotUnavailable.Details)
}
