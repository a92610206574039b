// Package dialect holds the few SQL fragments that differ between the
// sqlite3 and pgx drivers. Stores pass the driver name of the handle they
// are about to query.
package dialect

const (
	SQLite3 = "sqlite3"
	PGX     = "pgx"
)

func IsPostgres(driver string) bool {
	return driver == PGX
}

// BoolToInt stores booleans as 0/1 so the same INTEGER column works on both drivers.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// TimestampType is the column type for timestamps.
func TimestampType(driver string) string {
	if IsPostgres(driver) {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

// Like is the case-insensitive LIKE operator. SQLite's LIKE already ignores ASCII case.
func Like(driver string) string {
	if IsPostgres(driver) {
		return "ILIKE"
	}
	return "LIKE"
}
