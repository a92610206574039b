package dialect

import (
	"fmt"
	"strings"
)

// JSONExtract returns the SQL fragment reading a nested JSON value as text.
//
//	SQLite:   json_extract(col, '$.a.b')
//	Postgres: col::jsonb #>> '{a,b}'
func JSONExtract(driver, col string, path ...string) string {
	if IsPostgres(driver) {
		return fmt.Sprintf("%s::jsonb #>> '{%s}'", col, strings.Join(path, ","))
	}
	return fmt.Sprintf("json_extract(%s, '$.%s')", col, strings.Join(path, "."))
}

// JSONIsTrue returns the SQL predicate matching a JSON boolean set to true.
// SQLite's json_extract yields 1 for true while Postgres' text form is 'true'.
func JSONIsTrue(driver, col string, path ...string) string {
	if IsPostgres(driver) {
		return JSONExtract(driver, col, path...) + " = 'true'"
	}
	return JSONExtract(driver, col, path...) + " = 1"
}
