package storage

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"openprices_sync/pkg/dbconnect"
)

// jsonStringArray stores a tag list as JSON text where the database has no
// array type.
type jsonStringArray struct {
	dst *[]string
}

func (a jsonStringArray) Value() (driver.Value, error) {
	if *a.dst == nil {
		return nil, nil
	}
	b, err := json.Marshal(*a.dst)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a jsonStringArray) Scan(src interface{}) error {
	var text sql.NullString
	if err := text.Scan(src); err != nil {
		return err
	}
	if !text.Valid {
		*a.dst = nil
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(text.String), &tags); err != nil {
		return fmt.Errorf("decode tag list: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	*a.dst = tags
	return nil
}

// arrayValue wraps a tag list for writing.
func arrayValue(dialect dbconnect.Dialect, tags []string) interface{} {
	if dialect == dbconnect.DialectPostgres {
		return pq.Array(tags)
	}
	return jsonStringArray{dst: &tags}
}

// arrayScanner wraps a tag list for reading.
func arrayScanner(dialect dbconnect.Dialect, dst *[]string) interface{} {
	if dialect == dbconnect.DialectPostgres {
		return pq.Array(dst)
	}
	return jsonStringArray{dst: dst}
}
