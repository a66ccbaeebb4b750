package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissingInputError_Error(t *testing.T) {
	err := &MissingInputError{ModelID: "easix", Fields: []string{"creatinine", "ldh"}}
	assert.Equal(t, "easix: missing required fields: creatinine, ldh", err.Error())
}

func TestInvalidRangeError_Error(t *testing.T) {
	err := &InvalidRangeError{
		ModelID: "car_hematotox",
		Field:   "platelets",
		Reason:  "negative value -10: physiologically impossible",
	}
	assert.Equal(t, "car_hematotox: platelets: negative value -10: physiologically impossible", err.Error())
}

func TestModelExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("matrix not positive definite")
	err := &ModelExecutionError{ModelID: "hscore", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "hscore")
}

func TestAPIError_Error(t *testing.T) {
	err := NewAPIError(ErrCodeInvalidRange, "platelets below safe floor", "", "req-1")
	assert.Equal(t, "INVALID_RANGE: platelets below safe floor", err.Error())
	assert.False(t, err.Timestamp.IsZero())
}
