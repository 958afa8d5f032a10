package converter

import (
	"fmt"

	"github.com/notifyhub/prepflow/backend/payload"
)

type Converter interface {
	// To converts the given value to a payload
	To(v any) (payload.Payload, error)

	// From converts the given payload to a value
	From(data payload.Payload, v any) error
}

var DefaultConverter Converter = &jsonConverter{}

// ByName returns the converter registered under name. Used to select the encoding from
// process configuration.
func ByName(name string) (Converter, error) {
	switch name {
	case "", "json":
		return &jsonConverter{}, nil
	case "msgpack":
		return &msgpackConverter{}, nil
	default:
		return nil, fmt.Errorf("unknown converter %q", name)
	}
}
