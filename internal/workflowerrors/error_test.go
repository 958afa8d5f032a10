package workflowerrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type retryable struct{}

func (retryable) Error() string   { return "try again" }
func (retryable) Transient() bool { return true }

func Test_FromError_Nil(t *testing.T) {
	require.Nil(t, FromError(nil))
}

func Test_FromError_DoesNotWrapAgain(t *testing.T) {
	err := FromError(errors.New("foo"))

	err2 := FromError(err)
	require.Same(t, err, err2)
}

func Test_FromError_KeepsCause(t *testing.T) {
	input := fmt.Errorf("resolving roster: %w", errors.New("team not found"))
	e := FromError(input)

	require.Equal(t, "resolving roster: team not found", e.Error())
	require.Equal(t, "team not found", errors.Unwrap(e).Error())
	require.False(t, e.Transient)
}

func Test_FromError_Transient(t *testing.T) {
	e := FromError(fmt.Errorf("dispatch: %w", retryable{}))

	require.True(t, IsTransient(e))
	require.True(t, IsTransient(fmt.Errorf("wrapped: %w", retryable{})))
	require.False(t, IsTransient(errors.New("x")))
}

func Test_FromError_TransientSurvivesPersistence(t *testing.T) {
	live := fmt.Errorf("dispatching batch 0: %w", retryable{})

	persisted := FromError(live)
	require.True(t, persisted.Transient)

	b, err := json.Marshal(persisted)
	require.NoError(t, err)

	var out *Error
	require.NoError(t, json.Unmarshal(b, &out))
	require.True(t, IsTransient(ToError(out)))

	// Marked on the cause only
	inner := FromError(fmt.Errorf("outer: %w", errors.New("inner")))
	inner.Cause.(*Error).Transient = true
	require.True(t, IsTransient(ToError(inner)))
	require.False(t, IsTransient(ToError(FromError(errors.New("x")))))
}

func Test_JSONRoundTrip(t *testing.T) {
	e := FromError(fmt.Errorf("outer: %w", errors.New("inner")))

	b, err := json.Marshal(e)
	require.NoError(t, err)

	var out *Error
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, "outer: inner", out.Message)
	require.Equal(t, "inner", errors.Unwrap(out).Error())
}

func Test_PanicRoundTrip(t *testing.T) {
	input := NewPanicError("boom")
	require.Contains(t, input.Error(), "boom")
	require.NotEmpty(t, input.Stack())

	output := ToError(FromError(input))
	require.Equal(t, input, output)
}
