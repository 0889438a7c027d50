package certstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/certledger/certanchor/internal/metadata"
	"github.com/certledger/certanchor/internal/storage"
)

func testData() []metadata.Field {
	return []metadata.Field{{
		Key:    "name",
		Values: []metadata.Value{{Label: "Full name", Value: "Jane Doe", Type: "string", IsUnique: true}},
	}}
}

func newRecord(tx string, index int) *Record {
	return &Record{
		ID:               uuid.New(),
		CertificateType:  "degree",
		CertificateData:  testData(),
		CertificateIndex: index,
		TxHash:           tx,
		Version:          1,
		Fingerprint:      Fingerprint("degree", testData()),
	}
}

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) *KVStore {
	t.Helper()
	clk := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewKVStore(storage.NewPrefixDB(storage.NewMemory(), []byte("tenant_acme/")), clk.now)
}

func TestKVStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newRecord("aa", -1)

	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.BlockID != PendingBlock {
		t.Errorf("BlockID = %q, want pending", got.BlockID)
	}
	if got.CreatedAt.IsZero() || got.TxHash != "aa" {
		t.Errorf("stored record = %+v", got)
	}
	if len(got.CertificateData) != 1 || got.CertificateData[0].Values[0] != testData()[0].Values[0] {
		t.Errorf("certificate data = %+v", got.CertificateData)
	}

	if err := s.Create(ctx, r); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second Create() error = %v, want ErrDuplicate", err)
	}
	if _, err := s.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestKVStore_CreateBatch_Atomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	existing := newRecord("aa", -1)
	if err := s.Create(ctx, existing); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	fresh := newRecord("bb", 0)
	if err := s.CreateBatch(ctx, []*Record{fresh, existing}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("CreateBatch() error = %v, want ErrDuplicate", err)
	}
	if _, err := s.Get(ctx, fresh.ID); !errors.Is(err, ErrNotFound) {
		t.Error("no record of a failed batch should be stored")
	}
}

func TestKVStore_FindByTx(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r2, r0, r1 := newRecord("bulk", 2), newRecord("bulk", 0), newRecord("bulk", 1)
	other := newRecord("single", -1)
	if err := s.CreateBatch(ctx, []*Record{r2, r0, r1, other}); err != nil {
		t.Fatalf("CreateBatch() error: %v", err)
	}

	got, err := s.FindByTx(ctx, "bulk")
	if err != nil {
		t.Fatalf("FindByTx() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("FindByTx() = %d records, want 3", len(got))
	}
	for i, r := range got {
		if r.CertificateIndex != i {
			t.Errorf("record %d has index %d", i, r.CertificateIndex)
		}
	}
}

func TestKVStore_PendingLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first, second := newRecord("aa", -1), newRecord("bb", -1)
	s.Create(ctx, first)
	s.Create(ctx, second)

	pending, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID {
		t.Fatalf("ListPending() = %v, want oldest first", pending)
	}

	if err := s.ConfirmBlock(ctx, first.ID, "blk1"); err != nil {
		t.Fatalf("ConfirmBlock() error: %v", err)
	}
	pending, _ = s.ListPending(ctx)
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Errorf("ListPending() after confirm = %v", pending)
	}

	got, _ := s.Get(ctx, first.ID)
	if got.BlockID != "blk1" || got.Pending() {
		t.Errorf("confirmed record = %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Error("UpdatedAt should advance on confirmation")
	}

	if err := s.ConfirmBlock(ctx, first.ID, "blk2"); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Errorf("second ConfirmBlock() error = %v, want ErrAlreadyConfirmed", err)
	}
	got, _ = s.Get(ctx, first.ID)
	if got.BlockID != "blk1" {
		t.Errorf("block reference rewritten to %q", got.BlockID)
	}

	if err := s.ConfirmBlock(ctx, uuid.New(), "blk"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ConfirmBlock(unknown) error = %v, want ErrNotFound", err)
	}
	if err := s.ConfirmBlock(ctx, second.ID, PendingBlock); err == nil {
		t.Error("ConfirmBlock with the pending marker should fail")
	}
}

func TestIsPending(t *testing.T) {
	for _, v := range []string{"", PendingBlock} {
		if !IsPending(v) {
			t.Errorf("IsPending(%q) = false", v)
		}
	}
	if IsPending("abc") {
		t.Error("IsPending(abc) = true")
	}
}

func TestRecord_Label(t *testing.T) {
	if l := newRecord("", -1).Label(); l != 674 {
		t.Errorf("single label = %d", l)
	}
	if l := newRecord("", 9).Label(); l != 67410 {
		t.Errorf("bulk label = %d", l)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("degree", testData())
	if a != Fingerprint("degree", testData()) {
		t.Error("Fingerprint should be deterministic")
	}
	if a == Fingerprint("diploma", testData()) {
		t.Error("Fingerprint should cover the certificate type")
	}
	if len(a) != 64 {
		t.Errorf("Fingerprint length = %d, want 64 hex chars", len(a))
	}
}
