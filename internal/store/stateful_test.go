package store

import (
	"context"
	"testing"

	"github.com/roach88/activitylog/internal/ir"
)

func TestStatefulTable_LookupOrCreateKeepsState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	media := s.Storage()

	created, err := media.LookupOrCreate(ctx, "usb-1", ir.StorageNotAvailable)
	if err != nil {
		t.Fatalf("LookupOrCreate() failed: %v", err)
	}
	if created.State != int32(ir.StorageNotAvailable) {
		t.Errorf("created.State = %d, want %d", created.State, ir.StorageNotAvailable)
	}

	again, err := media.LookupOrCreate(ctx, "usb-1", ir.StorageAvailable)
	if err != nil {
		t.Fatalf("LookupOrCreate() again failed: %v", err)
	}
	if again != created {
		t.Errorf("LookupOrCreate() again = %+v, want %+v", again, created)
	}

	media.ClearCache()
	fromTable, ok, err := media.Lookup(ctx, "usb-1")
	if err != nil || !ok {
		t.Fatalf("Lookup() = _, %v, %v; want found", ok, err)
	}
	if fromTable.State != int32(ir.StorageNotAvailable) {
		t.Errorf("table state = %d, want %d", fromTable.State, ir.StorageNotAvailable)
	}
}

func TestStatefulTable_SetState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	media := s.Storage()

	created, err := media.LookupOrCreate(ctx, "usb-1", ir.StorageAvailable)
	if err != nil {
		t.Fatalf("LookupOrCreate() failed: %v", err)
	}

	updated, err := s.SetStorageState(ctx, "usb-1", ir.StorageNotAvailable)
	if err != nil {
		t.Fatalf("SetStorageState() failed: %v", err)
	}
	if updated.ID != created.ID || updated.State != int32(ir.StorageNotAvailable) {
		t.Errorf("SetStorageState() = %+v, want id %d not-available", updated, created.ID)
	}

	// Both the cache and the table report the new state.
	cached, ok, err := media.LookupByID(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("LookupByID() = _, %v, %v; want found", ok, err)
	}
	if cached.State != int32(ir.StorageNotAvailable) {
		t.Errorf("cached state = %d, want %d", cached.State, ir.StorageNotAvailable)
	}

	media.ClearCache()
	fromTable, ok, err := media.LookupByID(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("LookupByID() after clear = _, %v, %v; want found", ok, err)
	}
	if fromTable.State != int32(ir.StorageNotAvailable) {
		t.Errorf("table state = %d, want %d", fromTable.State, ir.StorageNotAvailable)
	}
}

func TestStatefulTable_SetStateCreatesUnknownMedium(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e, err := s.SetStorageState(ctx, "net-share", ir.StorageNotAvailable)
	if err != nil {
		t.Fatalf("SetStorageState() failed: %v", err)
	}
	if e.ID <= 0 {
		t.Errorf("e.ID = %d, want positive", e.ID)
	}

	n, err := s.Storage().Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestStatefulTable_RejectsUnknownState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.SetStorageState(ctx, "usb-1", ir.StorageState(2)); !ir.IsInvalidArgument(err) {
		t.Errorf("SetStorageState(2) error = %v, want INVALID_ARGUMENT", err)
	}
	if _, err := s.Storage().LookupOrCreate(ctx, "usb-1", ir.StorageState(-1)); !ir.IsInvalidArgument(err) {
		t.Errorf("LookupOrCreate(-1) error = %v, want INVALID_ARGUMENT", err)
	}
	if _, err := s.SetStorageState(ctx, "", ir.StorageAvailable); !ir.IsInvalidArgument(err) {
		t.Errorf("SetStorageState(\"\") error = %v, want INVALID_ARGUMENT", err)
	}
}
