package sqlite

import "strings"

// SQLite reports constraint failures only through the message text, e.g.
// "constraint failed: UNIQUE constraint failed: users.email (2067)".

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
