package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ErrorClass is the provider-independent category of a database failure.
type ErrorClass string

const (
	ClassNone             ErrorClass = ""
	ClassPermissionDenied ErrorClass = "permission-denied"
	ClassUnavailable      ErrorClass = "unavailable"
	ClassNotFound         ErrorClass = "not-found"
	ClassUnknown          ErrorClass = "unknown"
)

// Classify maps driver errors from postgres, mysql and sqlite onto an
// ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ClassNotFound
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return ClassUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(pgErr.Code)
	}

	// lib/pq surfaces through the migration driver.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres(string(pqErr.Code))
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return classifyMySQL(myErr.Number)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassUnavailable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "readonly database"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "access denied"):
		return ClassPermissionDenied
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "database is closed"):
		return ClassUnavailable
	}

	return ClassUnknown
}

func classifyPostgres(code string) ErrorClass {
	switch {
	case code == "42501" || code == "28000" || code == "28P01":
		return ClassPermissionDenied
	case strings.HasPrefix(code, "08"),
		strings.HasPrefix(code, "53"),
		code == "57P01", code == "57P02", code == "57P03":
		return ClassUnavailable
	default:
		return ClassUnknown
	}
}

func classifyMySQL(number uint16) ErrorClass {
	switch number {
	case 1044, 1045, 1142, 1143:
		return ClassPermissionDenied
	case 1040, 1053, 1205, 2002, 2003, 2006, 2013:
		return ClassUnavailable
	default:
		return ClassUnknown
	}
}

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}

	// MySQL (error code 1062)
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}

	// SQLite (error code 2067)
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
