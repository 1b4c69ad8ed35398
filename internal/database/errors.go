package database

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// The write-error taxonomy the ingestion engine depends on. Duplicate keys
// are expected during bulk insert (the probe record is re-inserted) and are
// swallowed by the caller; permission errors are fatal to a whole run because
// they will recur identically for every subsequent record.
var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrPermission   = errors.New("write permission denied")
)

// MySQL and PostgreSQL error codes that map onto the taxonomy
const (
	mysqlDuplicateEntry  = 1062
	mysqlDBAccessDenied  = 1044
	mysqlTableNoPerm     = 1142
	mysqlPrivilegeNeeded = 1227

	pgUniqueViolation       = "23505"
	pgInsufficientPrivilege = "42501"
)

// classifyWriteError maps driver-specific errors onto the sentinel taxonomy.
// Anything unrecognized passes through unchanged.
func classifyWriteError(err error) error {
	if err == nil {
		return nil
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlDuplicateEntry:
			return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		case mysqlDBAccessDenied, mysqlTableNoPerm, mysqlPrivilegeNeeded:
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		case pgInsufficientPrivilege:
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
	}

	return err
}
