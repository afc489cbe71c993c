package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "message only",
			err:  ValidationError("bad input"),
			want: "validation: bad input",
		},
		{
			name: "with code",
			err:  ValidationError("bad input").WithCode("E100"),
			want: "validation: bad input: code=E100",
		},
		{
			name: "with cause",
			err:  InternalError("persist failed", stderrors.New("disk full")),
			want: "internal: persist failed: cause=disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NotFoundError("trigger").WithContext("trigger_id", "t1")
	assert.Contains(t, err.Error(), "trigger_id=t1")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("root")
	err := ConnectionError("dial failed", cause)
	assert.True(t, stderrors.Is(err, cause))
}

func TestIsType(t *testing.T) {
	assert.True(t, IsType(NotFoundError("trigger"), ErrTypeNotFound))
	assert.False(t, IsType(NotFoundError("trigger"), ErrTypeValidation))
	assert.False(t, IsType(nil, ErrTypeNotFound))
	assert.False(t, IsType(stderrors.New("plain"), ErrTypeNotFound))

	// wrapped AppError is still detected
	wrapped := fmt.Errorf("outer: %w", RateLimitError("connection c1"))
	assert.True(t, IsType(wrapped, ErrTypeRateLimit))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrTypeTimeout, GetType(TimeoutError("invoke")))
	assert.Equal(t, ErrTypeInternal, GetType(stderrors.New("plain")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}
