package handler

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Nullable distinguishes an absent JSON field from an explicit null. Set is
// true whenever the field was present.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(b, []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
