package args

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/backend/converter"
	"github.com/notifyhub/prepflow/internal/sync"
)

func TestInputsToArgs(t *testing.T) {
	tests := []struct {
		name       string
		fn         any
		inputs     []any
		addContext bool
		err        string
	}{
		{
			name:       "just context",
			fn:         func(context.Context) error { return nil },
			inputs:     []any{},
			addContext: true,
		},
		{
			name:       "workflow context",
			fn:         func(sync.Context, string) error { return nil },
			inputs:     []any{"n1"},
			addContext: true,
		},
		{
			name:       "arguments with context",
			fn:         func(context.Context, int, string) error { return nil },
			inputs:     []any{42, ""},
			addContext: true,
		},
		{
			name:   "no context",
			fn:     func(int, string) error { return nil },
			inputs: []any{42, "x"},
		},
		{
			name:   "mismatched argument count - too many",
			fn:     func(int, string) error { return nil },
			inputs: []any{42, "", 13},
			err:    "mismatched argument count: expected 2, got 3",
		},
		{
			name:   "mismatched argument count - too few",
			fn:     func(int, string) error { return nil },
			inputs: []any{42},
			err:    "mismatched argument count: expected 2, got 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs, err := ArgsToInputs(converter.DefaultConverter, tt.inputs...)
			require.NoError(t, err)

			args, addContext, err := InputsToArgs(converter.DefaultConverter, reflect.ValueOf(tt.fn), inputs)
			if tt.err != "" {
				require.EqualError(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.addContext, addContext)
			require.Len(t, args, len(tt.inputs))

			for i, a := range args {
				require.EqualValues(t, tt.inputs[i], a.Interface())
			}
		})
	}
}

func TestReturnTypeMatch(t *testing.T) {
	require.True(t, ReturnTypeMatch[int](func() (int, error) { return 0, nil }))
	require.True(t, ReturnTypeMatch[any](func() error { return nil }))
	require.False(t, ReturnTypeMatch[int](func() (string, error) { return "", nil }))
	require.False(t, ReturnTypeMatch[int](func() error { return nil }))
	require.False(t, ReturnTypeMatch[int](42))
}

func TestParamsMatch(t *testing.T) {
	require.True(t, ParamsMatch(func(context.Context, int) error { return nil }, 1))
	require.True(t, ParamsMatch(func(int, string) error { return nil }, 1, "a"))
	require.False(t, ParamsMatch(func(context.Context, int) error { return nil }))
}

func TestIsOwnContext(t *testing.T) {
	require.True(t, IsOwnContext(reflect.TypeOf((*sync.Context)(nil)).Elem()))
	require.False(t, IsOwnContext(reflect.TypeOf((*context.Context)(nil)).Elem()))
	require.False(t, IsOwnContext(reflect.TypeOf(42)))
	require.False(t, IsOwnContext(nil))
}
