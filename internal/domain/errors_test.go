package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsStatusConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "status conflict error", err: ErrStatusConflict, want: true},
		{name: "wrapped status conflict error", err: fmt.Errorf("advance: %w", ErrStatusConflict), want: true},
		{name: "other error", err: ErrOrderNotFound, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStatusConflict(tt.err); got != tt.want {
				t.Errorf("IsStatusConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPlacementConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "key taken", err: ErrPlacementKeyTaken, want: true},
		{name: "fingerprint mismatch", err: ErrPlacementFingerprintMismatch, want: true},
		{name: "joined mismatch", err: errors.Join(ErrPlacementFingerprintMismatch, errors.New("extra context")), want: true},
		{name: "already settled", err: ErrPlacementAlreadySettled, want: false},
		{name: "status conflict", err: ErrStatusConflict, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPlacementConflict(tt.err); got != tt.want {
				t.Errorf("IsPlacementConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(ErrInvalidStatus) {
		t.Fatal("ErrInvalidStatus should be a validation error")
	}
	if !IsValidation(fmt.Errorf("notes: %w", ErrNotesTooLong)) {
		t.Fatal("wrapped ErrNotesTooLong should be a validation error")
	}
	if IsValidation(ErrOrderNotFound) {
		t.Fatal("ErrOrderNotFound is not a validation error")
	}
}
