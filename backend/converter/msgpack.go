package converter

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/notifyhub/prepflow/backend/payload"
)

type msgpackConverter struct{}

func NewMsgpackConverter() Converter {
	return &msgpackConverter{}
}

func (mc *msgpackConverter) To(v any) (payload.Payload, error) {
	return msgpack.Marshal(v)
}

func (mc *msgpackConverter) From(data payload.Payload, vptr any) error {
	return msgpack.Unmarshal(data, vptr)
}
