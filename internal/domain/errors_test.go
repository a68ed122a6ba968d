package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAPIError(t *testing.T) {
	err := NewAPIError(ErrCodeInvalidArgument, "Invalid vitals", "age out of range", "req-123")

	assert.Equal(t, ErrCodeInvalidArgument, err.Code)
	assert.Equal(t, "req-123", err.RequestID)
	assert.WithinDuration(t, time.Now(), err.Timestamp, time.Minute)
	assert.Equal(t, "INVALID_ARGUMENT: Invalid vitals", err.Error())
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("heart_rate", "must be between 40 and 200 bpm", 250)

	assert.Equal(t, "validation error for field 'heart_rate': must be between 40 and 200 bpm", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	var target *ValidationError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
	assert.Equal(t, 250, target.Value)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewValidationError("age", "bad", 1), ErrCodeInvalidArgument},
		{fmt.Errorf("load: %w", ErrModelUnavailable), ErrCodeModelUnavailable},
		{fmt.Errorf("feedback: %w", ErrNotFound), ErrCodeNotFound},
		{errors.New("boom"), ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}
