package sinkqueue

import (
	"context"
	"errors"
	"testing"
)

func TestEnqueueOverload(t *testing.T) {
	q := New(1, 0, 0)
	r1, _ := NewReceipt()
	if err := q.Enqueue(r1); err != nil {
		t.Fatal(err)
	}
	r2, _ := NewReceipt()
	if err := q.Enqueue(r2); err != ErrOverload {
		t.Fatalf("expected ErrOverload, got %v", err)
	}
}

func TestDequeueNotReadyThenSuccess(t *testing.T) {
	q := New(2, 0, 0)
	r, complete := NewReceipt()
	if err := q.Enqueue(r); err != nil {
		t.Fatal(err)
	}
	res, _ := q.Dequeue()
	if res != DequeueNotReady {
		t.Fatalf("expected NotReady, got %v", res)
	}
	complete(nil)
	res, err := q.Dequeue()
	if res != DequeueSuccess || err != nil {
		t.Fatalf("expected Success, got %v %v", res, err)
	}
	// popped -- queue now empty
	res, _ = q.Dequeue()
	if res != DequeueEmpty {
		t.Fatalf("expected Empty after pop, got %v", res)
	}
}

func TestDequeueFailurePopsAndReportsError(t *testing.T) {
	q := New(1, 0, 0)
	r, complete := NewReceipt()
	q.Enqueue(r)
	wantErr := errors.New("boom")
	complete(wantErr)
	res, err := q.Dequeue()
	if res != DequeueFailure || err != wantErr {
		t.Fatalf("expected Failure(boom), got %v %v", res, err)
	}
}

func TestHasCapacity(t *testing.T) {
	q := New(1, 0, 0)
	if !q.HasCapacity() {
		t.Fatalf("expected capacity before any enqueue")
	}
	r, _ := NewReceipt()
	q.Enqueue(r)
	if q.HasCapacity() {
		t.Fatalf("expected no capacity once full")
	}
}

func TestDrainPopsOnlyResolvedHeads(t *testing.T) {
	q := New(3, 0, 0)
	r1, c1 := NewReceipt()
	r2, _ := NewReceipt()
	q.Enqueue(r1)
	q.Enqueue(r2)
	c1(nil)
	succ, fail := q.Drain()
	if succ != 1 || fail != 0 {
		t.Fatalf("expected 1 success before hitting unresolved head, got %d/%d", succ, fail)
	}
	// r2 still unresolved, still occupying a slot: two more fill capacity 3
	r3, _ := NewReceipt()
	r4, _ := NewReceipt()
	q.Enqueue(r3)
	q.Enqueue(r4)
	if q.HasCapacity() {
		t.Fatalf("expected r2 still pending, no capacity for 2 more")
	}
}

func TestTryAdmitOverloadWhenFull(t *testing.T) {
	q := New(1, 0, 0)
	_, done, err := q.TryAdmit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer done(nil)
	_, _, err = q.TryAdmit(context.Background())
	if err != ErrOverload {
		t.Fatalf("expected ErrOverload on second admit with capacity 1, got %v", err)
	}
}
