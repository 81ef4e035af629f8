package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDiagnostics is what Postgres reported for a failed statement, whichever
// driver surfaced it.
type PGDiagnostics struct {
	Code       string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

// ErrorDump is the log-side view of an error: its typed code and reason, the
// unwrapped chain and any Postgres or gateway diagnostics found along it.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Retryable  bool     `json:"retryable,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PG *PGDiagnostics `json:"pg,omitempty"`
	// GatewayRequestID is the payment provider's id for the failed call.
	GatewayRequestID string `json:"gateway_request_id,omitempty"`
}

// gatewayError is implemented by provider API errors that carry a request id.
type gatewayError interface {
	GatewayRequestID() string
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error(), Reason: Reason(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(te.Code()).Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PG = pgDiagnostics(err)

	var gw gatewayError
	if errors.As(err, &gw) {
		d.GatewayRequestID = gw.GatewayRequestID()
	}
	return d
}

func pgDiagnostics(err error) *PGDiagnostics {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDiagnostics{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDiagnostics{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// Fields flattens the dump into structured log fields, skipping empty values.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error_message": d.TopMessage}
	set := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	set("error_code", string(d.Code))
	set("error_reason", d.Reason)
	set("gateway_request_id", d.GatewayRequestID)
	if d.Retryable {
		fields["retryable"] = true
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	if pg := d.PG; pg != nil {
		set("pg_code", pg.Code)
		set("pg_constraint", pg.Constraint)
		set("pg_table", pg.Table)
		set("pg_column", pg.Column)
		set("pg_detail", pg.Detail)
		set("pg_message", pg.Message)
	}
	return fields
}
