package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
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
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodePartialFailure, status: http.StatusInternalServerError, publicMsg: "operation partially applied", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true},
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
	if !IsCode(fmt.Errorf("outer: %w", err), CodeForbidden) {
		t.Fatalf("IsCode should see through fmt wrapping")
	}
}

func TestAnnotateKeepsCodeAndDetails(t *testing.T) {
	base := New(CodeInsufficientStock, "item 1234 short").WithDetails(map[string]any{"item_id": "1234"})
	annotated := Annotate(base, "invoice abc")

	typed := As(annotated)
	if typed == nil || typed.Code() != CodeInsufficientStock {
		t.Fatalf("expected insufficient stock code, got %v", annotated)
	}
	if typed.Message() != "invoice abc: item 1234 short" {
		t.Fatalf("unexpected message %q", typed.Message())
	}
	if typed.Details() == nil {
		t.Fatalf("details should survive annotation")
	}
	if !stdErrors.Is(annotated, base) {
		t.Fatalf("annotation should wrap the original")
	}

	plain := Annotate(stdErrors.New("disk"), "load")
	if !IsCode(plain, CodeInternal) {
		t.Fatalf("untyped errors should annotate as internal")
	}
	if Annotate(nil, "noop") != nil {
		t.Fatalf("annotating nil should return nil")
	}
}

func TestPartialFailureDetails(t *testing.T) {
	cause := stdErrors.New("write failed")
	err := PartialFailure("create_invoice", []string{"inventory"}, "inv-1", cause)

	if err.Code() != CodePartialFailure {
		t.Fatalf("unexpected code %s", err.Code())
	}
	details, ok := err.Details().(PartialFailureDetails)
	if !ok {
		t.Fatalf("unexpected details type %T", err.Details())
	}
	if details.Step != "create_invoice" || len(details.Completed) != 1 || details.Completed[0] != "inventory" {
		t.Fatalf("unexpected details %+v", details)
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("partial failure should wrap cause")
	}

	empty := PartialFailure("link_broker", nil, "", cause)
	if got := empty.Details().(PartialFailureDetails).Completed; got == nil {
		t.Fatalf("completed steps should never be nil")
	}
}

func TestDumpIncludesPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "commission_sheets_invoice_no_key", TableName: "commission_sheets"}
	err := Wrap(CodeConflict, pgErr, "insert sheet")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.PGCode != "23505" || d.PGConstraint != "commission_sheets_invoice_no_key" {
		t.Fatalf("unexpected pg fields %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(d.Chain))
	}
}

func TestDumpIncludesSQLiteCodes(t *testing.T) {
	liteErr := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
	d := Dump(Wrap(CodeConflict, liteErr, "insert inventory item"))

	if d.SQLiteCode != int(sqlite3.ErrConstraint) || d.SQLiteExtended != int(sqlite3.ErrConstraintUnique) {
		t.Fatalf("unexpected sqlite fields %+v", d)
	}
	if d.PGCode != "" {
		t.Fatalf("pg fields should stay empty, got %q", d.PGCode)
	}
}
