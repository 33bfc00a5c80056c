package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Meta is an opaque audit payload stored as JSONB.
type Meta map[string]any

func (m Meta) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal meta: %w", err)
	}

	return string(b), nil
}

func (m *Meta) Scan(src any) error {
	var raw []byte

	switch v := src.(type) {
	case nil:
		*m = Meta{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan meta: unsupported type %T", src)
	}

	out := Meta{}

	err := json.Unmarshal(raw, &out)
	if err != nil {
		return fmt.Errorf("unmarshal meta: %w", err)
	}

	*m = out

	return nil
}
