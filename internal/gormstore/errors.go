package gormstore

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Dialectors translate driver errors when TranslateError is on. The
// message checks cover drivers that leave the error untranslated.

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") || strings.Contains(msg, "SQLSTATE 23503")
}

func isConstraintError(err error) bool {
	return isDuplicateKey(err) || isForeignKeyViolation(err)
}
