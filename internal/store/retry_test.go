package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type busyCodeError struct{}

func (busyCodeError) Error() string { return "busy" }
func (busyCodeError) Code() int     { return sqliteBusyCode }

func TestRetryOnBusyRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryOnBusy: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	wantErr := errors.New("UNIQUE constraint failed")
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-busy errors must not retry, got %d calls", calls)
	}
}

func TestRetryOnBusyGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return busyCodeError{}
	})
	if err == nil {
		t.Fatal("expected persistent busy error to surface")
	}
	if calls != busyRetryAttempts {
		t.Fatalf("expected %d attempts, got %d", busyRetryAttempts, calls)
	}
}

func TestIsSQLiteBusy(t *testing.T) {
	if isSQLiteBusy(nil) {
		t.Fatal("nil is not busy")
	}
	if !isSQLiteBusy(busyCodeError{}) {
		t.Fatal("busy result code not detected")
	}
	if !isSQLiteBusy(fmt.Errorf("claim episode: %w", busyCodeError{})) {
		t.Fatal("wrapped busy result code not detected")
	}
	if !isSQLiteBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatal("busy message not detected")
	}
	if isSQLiteBusy(errors.New("no such table: episodes")) {
		t.Fatal("unrelated error flagged busy")
	}
}
