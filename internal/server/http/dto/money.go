package dto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

// Money is an optional amount that accepts a JSON number, a numeric string or null.
// Strings go through model.ParseMoney, so a malformed string decodes to no amount.
// Numbers are kept as sent and validated by the use case.
type Money struct {
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		m.Value = nil
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode amount: %w", err)
		}
		m.Value = model.ParseMoney(raw)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode amount: %w", err)
	}
	m.Value = &v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	if m.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*m.Value)
}
