package postgres

import (
	"database/sql"
	"errors"
	"strconv"

	"github.com/lib/pq"
	ierr "github.com/voxagent/billing/internal/errors"
)

const pqUniqueViolation = "23505"

// mapError converts driver errors into marked domain errors.
// The pq error stays in the chain so callers can still inspect its code.
func mapError(err error, entity string, details map[string]any) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ierr.WithError(err).
			WithHintf("%s not found", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ierr.WithError(err).
			WithHintf("%s already exists", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrAlreadyExists)
	}

	return ierr.WithError(err).
		WithHintf("Failed to access %s", entity).
		WithReportableDetails(details).
		Mark(ierr.ErrDatabase)
}

// requireAffected turns a zero-row update into ErrNotFound
func requireAffected(res sql.Result, entity string, details map[string]any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err, entity, details)
	}
	if n == 0 {
		return ierr.NewErrorf("%s not found", entity).
			WithHintf("%s not found", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

// paginate appends ORDER/LIMIT/OFFSET clauses and their args
func paginate(query string, args []interface{}, orderBy, order string, limit, offset int) (string, []interface{}) {
	if order != "asc" {
		order = "desc"
	}
	query += " ORDER BY " + orderBy + " " + order
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $" + itoa(len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += " OFFSET $" + itoa(len(args))
	}
	return query, args
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
