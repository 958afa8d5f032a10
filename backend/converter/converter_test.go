package converter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recipient struct {
	ID   string `json:"id" msgpack:"id"`
	Kind int    `json:"kind" msgpack:"kind"`
}

func TestConverters(t *testing.T) {
	for _, name := range []string{"json", "msgpack"} {
		t.Run(name, func(t *testing.T) {
			c, err := ByName(name)
			require.NoError(t, err)

			p, err := c.To([]recipient{{ID: "u1", Kind: 1}, {ID: "c1", Kind: 2}})
			require.NoError(t, err)

			var out []recipient
			require.NoError(t, c.From(p, &out))
			require.Equal(t, []recipient{{ID: "u1", Kind: 1}, {ID: "c1", Kind: 2}}, out)
		})
	}
}

func TestByName_Unknown(t *testing.T) {
	_, err := ByName("xml")
	require.Error(t, err)
}
