package state

import (
	"testing"
)

func TestPaymentStatus_String(t *testing.T) {
	tests := []struct {
		name     string
		status   PaymentStatus
		expected string
	}{
		{
			name:     "Pending status",
			status:   StatusPending,
			expected: "pending",
		},
		{
			name:     "Completed status",
			status:   StatusCompleted,
			expected: "completed",
		},
		{
			name:     "Failed status",
			status:   StatusFailed,
			expected: "failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.status.String()
			if result != tt.expected {
				t.Errorf("String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     PaymentStatus
		to       PaymentStatus
		expected bool
	}{
		{
			name:     "Valid: Pending to Completed",
			from:     StatusPending,
			to:       StatusCompleted,
			expected: true,
		},
		{
			name:     "Valid: Pending to Failed",
			from:     StatusPending,
			to:       StatusFailed,
			expected: true,
		},
		{
			name:     "Valid: Failed to Pending (manual retry)",
			from:     StatusFailed,
			to:       StatusPending,
			expected: true,
		},
		{
			name:     "Invalid: Completed to Pending",
			from:     StatusCompleted,
			to:       StatusPending,
			expected: false,
		},
		{
			name:     "Invalid: Completed to Failed",
			from:     StatusCompleted,
			to:       StatusFailed,
			expected: false,
		},
		{
			name:     "Invalid: Failed to Completed",
			from:     StatusFailed,
			to:       StatusCompleted,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}
