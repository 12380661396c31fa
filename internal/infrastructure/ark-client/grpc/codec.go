package grpcclient

import (
	"encoding/json"
)

const codecName = "json"

// jsonCodec carries the ark.v1 messages as their canonical JSON mapping.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}
