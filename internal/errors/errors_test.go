package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := New("MED_001", "invalid medication")
	assert.Equal(t, "[MED_001] invalid medication", err.Error())

	wrapped := New("GEN_004", "store failure", fmt.Errorf("disk full"))
	assert.Contains(t, wrapped.Error(), "disk full")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, "GEN_004", "store failure")

	assert.True(t, errors.Is(err, cause))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, "MED_002", GetCode(ErrMedicationNotFound))
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
	assert.Equal(t, "UNKNOWN", GetCode(nil))
}

func TestIsAppError(t *testing.T) {
	assert.True(t, IsAppError(ErrUnauthorized))
	assert.False(t, IsAppError(fmt.Errorf("plain")))
}
