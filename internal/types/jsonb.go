package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions. Scan is on the pointer receiver, Value
// on the value receiver; these catch signature drift at compile time.
var (
	_ sql.Scanner   = (*RainLog)(nil)
	_ driver.Valuer = RainLog(nil)
)

// Scan implements sql.Scanner for reading the JSONB log column.
func (l *RainLog) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("rainlog: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, l)
}

// Value implements driver.Valuer for writing the JSONB log column.
// An empty log is stored as an empty JSON array rather than NULL so the
// column stays non-nullable.
func (l RainLog) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}
