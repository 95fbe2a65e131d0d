package types

import (
	"database/sql/driver"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonb = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONColumn stores a typed value in a JSONB column.
// Blobs are parsed once on read so callers never handle raw maps.
type JSONColumn[T any] struct {
	Data T
}

func NewJSONColumn[T any](data T) JSONColumn[T] {
	return JSONColumn[T]{Data: data}
}

// Value implements driver.Valuer
func (c JSONColumn[T]) Value() (driver.Value, error) {
	b, err := jsonb.Marshal(c.Data)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Scan implements sql.Scanner
func (c *JSONColumn[T]) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		var zero T
		c.Data = zero
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return jsonb.Unmarshal(data, &c.Data)
}

func (c JSONColumn[T]) MarshalJSON() ([]byte, error) {
	return jsonb.Marshal(c.Data)
}

func (c *JSONColumn[T]) UnmarshalJSON(data []byte) error {
	return jsonb.Unmarshal(data, &c.Data)
}

// DecodeStrict unmarshals raw JSON into out rejecting unknown fields
func DecodeStrict(raw []byte, out interface{}) error {
	strict := jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		DisallowUnknownFields:  true,
		UseNumber:              true,
	}.Froze()
	return strict.Unmarshal(raw, out)
}
