// Package repository implements the MySQL storage of the checkout core:
// the seat ledger, holds, orders, payments and refunds. Sentinel errors
// from the model package are returned for the conditions callers branch on.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the repositories translate.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errLockDeadlock    = 1213
)

func mysqlErrorNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// isDuplicateKey reports whether err is a unique constraint violation.
func isDuplicateKey(err error) bool {
	return mysqlErrorNumber(err) == errDupEntry
}

// isLockConflict reports whether err means the statement lost a row lock
// race to a concurrent transaction.
func isLockConflict(err error) bool {
	switch mysqlErrorNumber(err) {
	case errLockWaitTimeout, errLockDeadlock:
		return true
	}
	return false
}
