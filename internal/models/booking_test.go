package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookingStatusTransitions(t *testing.T) {
	assert.True(t, BookingPending.CanTransition(BookingAccepted))
	assert.True(t, BookingPending.CanTransition(BookingRejected))
	assert.True(t, BookingAccepted.CanTransition(BookingCancelled))
	assert.False(t, BookingAccepted.CanTransition(BookingRejected))
	assert.False(t, BookingRejected.CanTransition(BookingCancelled))
	assert.False(t, BookingCancelled.CanTransition(BookingPending))
}

func TestClaimsOwns(t *testing.T) {
	teacher := &JWTClaims{UserID: "u1", Role: RoleTeacher}
	assert.True(t, teacher.Owns("u1"))
	assert.False(t, teacher.Owns("u2"))
	assert.True(t, (&JWTClaims{UserID: "admin", Role: RoleAdmin}).Owns("u2"))
	assert.False(t, (&JWTClaims{Role: RoleStudent}).Owns(""))
	var none *JWTClaims
	assert.False(t, none.Owns("u1"))
}
