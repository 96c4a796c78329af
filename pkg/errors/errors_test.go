package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	clone := Clonef(ErrTeacherConflict, "teacher %v busy", "t1")
	wrapped := fmt.Errorf("swap failed: %w", clone)

	assert.True(t, errors.Is(clone, ErrTeacherConflict))
	assert.True(t, errors.Is(wrapped, ErrTeacherConflict))
	assert.False(t, errors.Is(wrapped, ErrSlotOccupied))
	assert.Equal(t, "teacher t1 busy", clone.Error())
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	plain := errors.New("boom")
	normalised := FromError(plain)
	assert.Equal(t, ErrInternal.Code, normalised.Code)
	assert.ErrorIs(t, normalised, plain)

	typed := Clone(ErrValidation, "bad input")
	assert.Same(t, typed, FromError(fmt.Errorf("ctx: %w", typed)))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("deadline")
	err := Wrap(cause, ErrStageFailed.Code, "stage optimization failed")

	assert.Equal(t, "stage optimization failed: deadline", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStageFailed)
}
