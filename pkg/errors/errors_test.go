package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestGatewayCodeHidesDetails(t *testing.T) {
	meta := MetadataFor(CodeGateway)
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected 500 for gateway errors, got %d", meta.HTTPStatus)
	}
	if meta.DetailsAllowed {
		t.Fatalf("gateway errors must not expose details")
	}
}

func TestWithReasonMergesDetails(t *testing.T) {
	err := New(CodeConflict, "payment already in progress").
		WithReason("duplicate_payment_in_progress", map[string]any{"transaction_id": "txn_1"})

	if got := Reason(err); got != "duplicate_payment_in_progress" {
		t.Fatalf("unexpected reason %q", got)
	}
	details, ok := err.Details().(map[string]any)
	if !ok || details["transaction_id"] != "txn_1" {
		t.Fatalf("expected transaction id to be preserved, got %#v", err.Details())
	}
	if !IsCode(fmt.Errorf("outer: %w", err), CodeConflict) {
		t.Fatalf("IsCode should see wrapped typed errors")
	}
	if Reason(stdErrors.New("plain")) != "" {
		t.Fatalf("plain errors carry no reason")
	}
}

func TestDumpFields(t *testing.T) {
	err := Wrap(CodeInternal, stdErrors.New("db down"), "load subscription")
	fields := Dump(err).Fields()
	if fields["error_code"] != string(CodeInternal) {
		t.Fatalf("expected error code field, got %#v", fields)
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("empty pg fields should be omitted")
	}
}

type fakeGatewayErr struct{}

func (fakeGatewayErr) Error() string            { return "paddle api 502" }
func (fakeGatewayErr) GatewayRequestID() string { return "req_01h" }

func TestDumpPostgresAndGatewayDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_invoices_paddle_transaction", TableName: "invoices"}
	fields := Dump(Wrap(CodeConflict, fmt.Errorf("insert invoice: %w", pgErr), "persist invoice")).Fields()
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "ux_invoices_paddle_transaction" {
		t.Fatalf("expected pg diagnostics, got %#v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg column should be omitted")
	}

	gw := Dump(Wrap(CodeGateway, fakeGatewayErr{}, "paddle create transaction failed"))
	if gw.GatewayRequestID != "req_01h" || gw.PG != nil {
		t.Fatalf("unexpected gateway dump %+v", gw)
	}
}

func TestDumpCarriesReasonAndRetryable(t *testing.T) {
	busy := New(CodeConflict, "checkout already in progress").WithReason("checkout_in_progress", nil)
	fields := Dump(busy).Fields()
	if fields["error_reason"] != "checkout_in_progress" {
		t.Fatalf("expected reason field, got %#v", fields)
	}
	if _, ok := fields["retryable"]; ok {
		t.Fatalf("conflicts are not retryable")
	}

	down := Wrap(CodeDependency, stdErrors.New("redis timeout"), "claim webhook event")
	if !Dump(down).Retryable {
		t.Fatalf("dependency failures should be marked retryable")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrapf(CodeDependency, stdErrors.New("dial tcp: timeout"), "load plan %s", "basic")
	if got := err.Error(); got != "DEPENDENCY_ERROR: load plan basic: dial tcp: timeout" {
		t.Fatalf("unexpected error string %q", got)
	}
	if got := Newf(CodeNotFound, "plan %d", 7).Error(); got != "NOT_FOUND: plan 7" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("activate: %w", New(CodeStateConflict, "subscription is cancelled"))
	if !stdErrors.Is(err, New(CodeStateConflict, "")) {
		t.Fatalf("errors.Is should match by code")
	}
	if stdErrors.Is(err, New(CodeConflict, "")) {
		t.Fatalf("different codes must not match")
	}
	if stdErrors.Is(err, New(CodeStateConflict, "other message")) {
		t.Fatalf("a target message must match exactly")
	}
}

func TestStatus(t *testing.T) {
	if got := Status(New(CodeIdempotency, "reused")); got != http.StatusConflict {
		t.Fatalf("expected 409, got %d", got)
	}
	if got := Status(stdErrors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for untyped errors, got %d", got)
	}
}
