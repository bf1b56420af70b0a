package util

import "encoding/json"

// EncoderDecoder converts values to and from their stored byte form. Flow
// definitions, bindings and background jobs all travel through it, keeping
// the DAOs free of per-type marshalling.
type EncoderDecoder[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (*T, error)
}

type jsonEncDec[T any] struct{}

func NewJsonEncoderDecoder[T any]() EncoderDecoder[T] {
	return jsonEncDec[T]{}
}

func (jsonEncDec[T]) Encode(value T) ([]byte, error) {
	return json.Marshal(value)
}

func (jsonEncDec[T]) Decode(data []byte) (*T, error) {
	res := new(T)
	if err := json.Unmarshal(data, res); err != nil {
		return nil, err
	}
	return res, nil
}
