package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores an opaque JSON object in a jsonb column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported jsonb source %T", value)
	}
	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

func (JSONMap) GormDataType() string {
	return "jsonb"
}
