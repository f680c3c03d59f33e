package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/claimflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	errPending := errors.New("still pending")
	errFatal := errors.New("boom")

	tests := []struct {
		op        func(attempt int) error
		wantErr   error
		name      string
		attempts  int
		wantCalls int
	}{
		{
			name:      "succeeds first time",
			op:        func(int) error { return nil },
			attempts:  3,
			wantCalls: 1,
		},
		{
			name: "succeeds after retryable errors",
			op: func(attempt int) error {
				if attempt < 3 {
					return Again(errPending)
				}
				return nil
			},
			attempts:  5,
			wantCalls: 3,
		},
		{
			name:      "stops on plain error",
			op:        func(int) error { return errFatal },
			attempts:  5,
			wantCalls: 1,
			wantErr:   errFatal,
		},
		{
			name:      "exhausts attempts",
			op:        func(int) error { return Again(errPending) },
			attempts:  3,
			wantCalls: 3,
			wantErr:   ErrMaxAttempts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), func(attempt int) error {
				calls++
				return tt.op(attempt)
			}, fastOptions(tt.attempts))

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := fastOptions(5)
	opts.InitialDelay = time.Second

	err := WithRetry(ctx, func(int) error { return Again(errors.New("pending")) }, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Again(errors.New("x"))))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(errors.New("x")))
	assert.False(t, IsRetryable(&RetryableError{Err: errors.New("x")}))
}

func TestUserError(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewUserError("backend unreachable", inner)

	assert.Equal(t, "backend unreachable: connection refused", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "plain", NewUserError("plain", nil).Error())
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", lvl.String())

	_, err = ParseLevel("loud")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
