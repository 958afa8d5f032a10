package sync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type ctxKey string

func Test_Context_Value(t *testing.T) {
	ctx := WithValue(Background(), ctxKey("a"), 1)
	ctx = WithValue(ctx, ctxKey("b"), 2)

	require.Equal(t, 1, ctx.Value(ctxKey("a")))
	require.Equal(t, 2, ctx.Value(ctxKey("b")))
	require.Nil(t, ctx.Value(ctxKey("c")))
}

func Test_Context_Cancel(t *testing.T) {
	parent, cancel := WithCancel(Background())
	child := WithValue(parent, ctxKey("a"), 1)
	grandchild, _ := WithCancel(child)

	require.NoError(t, parent.Err())
	require.NoError(t, grandchild.Err())

	cancel()
	cancel()

	require.ErrorIs(t, parent.Err(), Canceled)
	require.ErrorIs(t, child.Err(), Canceled)
	require.ErrorIs(t, grandchild.Err(), Canceled)
	require.Equal(t, 1, grandchild.Value(ctxKey("a")))
}
