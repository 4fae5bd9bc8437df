package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/lib/pq"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"bad conn", driver.ErrBadConn, true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"syntax error", &pq.Error{Code: "42601"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			if errors.Is(got, database.ErrStorageUnavailable) != tt.unavailable {
				t.Errorf("classifyError(%v) = %v, unavailable want %v", tt.err, got, tt.unavailable)
			}
			if tt.err != nil && !errors.Is(got, tt.err) {
				t.Errorf("expected original error to stay in the chain")
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "attendance_logs_dedup_idx"})
	if !isUniqueViolation(err, "attendance_logs_dedup_idx") {
		t.Error("expected unique violation on dedup index")
	}
	if isUniqueViolation(err, "other") {
		t.Error("expected constraint name to be checked")
	}
	if isUniqueViolation(errors.New("x"), "") {
		t.Error("plain error is not a unique violation")
	}
}
