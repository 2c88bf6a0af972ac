package services

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapMatchesMarkerAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrFetch, "download", "enclosure", "fetching original audio", cause)

	if !errors.Is(err, ErrFetch) {
		t.Fatal("expected errors.Is to match ErrFetch")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to match the underlying cause")
	}
	if errors.Is(err, ErrTranscription) {
		t.Fatal("unexpected match against unrelated marker")
	}

	want := "download enclosure: fetching original audio: connection reset"
	if err.Error() != want {
		t.Fatalf("unexpected message: got %q want %q", err.Error(), want)
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := Wrap(ErrClassification, "adscan", "", "model returned empty response", nil)
	if !errors.Is(err, ErrClassification) {
		t.Fatal("expected classification marker")
	}
	want := "adscan: model returned empty response"
	if err.Error() != want {
		t.Fatalf("unexpected message: got %q want %q", err.Error(), want)
	}
}

func TestWrapNilMarkerFallsBackToValidation(t *testing.T) {
	err := Wrap(nil, "", "", "missing field", nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected validation fallback marker")
	}
}

func TestDetails(t *testing.T) {
	err := Wrap(ErrAudioEdit, "audioedit", "filtergraph", "", errors.New("exit status 1"))
	wrapped := fmt.Errorf("attempt 2: %w", err)

	stage, op, ok := Details(wrapped)
	if !ok {
		t.Fatal("expected details through wrapping")
	}
	if stage != "audioedit" || op != "filtergraph" {
		t.Fatalf("unexpected details: %q %q", stage, op)
	}

	if _, _, ok := Details(errors.New("plain")); ok {
		t.Fatal("plain errors should not report details")
	}
}
