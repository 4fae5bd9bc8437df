package mock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

func TestMockStore_InsertAttendanceConcurrent(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted, rejected := 0, 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.InsertAttendance(ctx, &database.AttendanceEvent{StudentID: "S1", ClassID: "C1", MarkedAt: now}, time.Hour)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				inserted++
			case errors.Is(err, database.ErrAlreadyMarked):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if inserted != 1 || rejected != 15 {
		t.Errorf("expected 1 insert and 15 rejections, got %d and %d", inserted, rejected)
	}
}

func TestMockStore_PromoteTwice(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	m.AddProfile(database.Profile{ProfileID: "P1", StudentID: "S1"})
	if err := m.InsertPending(ctx, &database.PendingBiometric{PendingID: "X", ProfileID: "P1", StudentID: "S1", Embedding: []float32{1}, Status: database.StatusPending}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.PromotePending(ctx, "X"); err != nil {
		t.Fatalf("first promote failed: %v", err)
	}
	if _, err := m.PromotePending(ctx, "X"); !errors.Is(err, database.ErrAlreadyDecided) {
		t.Errorf("expected ErrAlreadyDecided, got %v", err)
	}
	if n, _ := m.CountActive(ctx); n != 1 {
		t.Errorf("expected 1 active row, got %d", n)
	}
}

func TestMockStore_PromoteErrorLeavesStateUntouched(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	m.AddProfile(database.Profile{ProfileID: "P1", StudentID: "S1"})
	_ = m.InsertPending(ctx, &database.PendingBiometric{PendingID: "X", ProfileID: "P1", StudentID: "S1", Embedding: []float32{1}, Status: database.StatusPending})
	m.PromoteError = errors.New("boom")

	if _, err := m.PromotePending(ctx, "X"); err == nil {
		t.Fatal("expected error")
	}
	p, _ := m.GetPending(ctx, "X")
	if p.Status != database.StatusPending {
		t.Errorf("expected pending status to stay, got %s", p.Status)
	}
	if n, _ := m.CountActive(ctx); n != 0 {
		t.Errorf("expected no active rows, got %d", n)
	}
}
