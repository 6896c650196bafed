package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is a log-friendly view of an error chain.
type ErrorDump struct {
	TopMessage string    `json:"top_message"`
	Code       Code      `json:"code,omitempty"`
	Chain      []string  `json:"chain,omitempty"`
	Postgres   *PGDetail `json:"postgres,omitempty"`
}

// PGDetail carries the server-side fields of a Postgres error, whichever
// driver produced it.
type PGDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), Postgres: postgresDetail(err)}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields flattens the dump into logger fields, omitting empty values.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.TopMessage}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.Code
		for key, val := range map[string]string{
			"pg_message":    pg.Message,
			"pg_detail":     pg.Detail,
			"pg_table":      pg.Table,
			"pg_column":     pg.Column,
			"pg_constraint": pg.Constraint,
		} {
			if val != "" {
				fields[key] = val
			}
		}
	}
	return fields
}

func postgresDetail(err error) *PGDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDetail{
			Code:       pgxErr.Code,
			Message:    pgxErr.Message,
			Detail:     pgxErr.Detail,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Constraint: pgxErr.ConstraintName,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDetail{
			Code:       string(pqErr.Code),
			Message:    pqErr.Message,
			Detail:     pqErr.Detail,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Constraint: pqErr.Constraint,
		}
	}
	return nil
}
