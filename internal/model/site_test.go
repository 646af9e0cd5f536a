package model

import (
	"errors"
	"slices"
	"testing"
)

// TestParseConsentModes tests parsing of comma separated consent modes.
func TestParseConsentModes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected []ConsentMode
		wantErr  bool
	}{
		{"all modes in order", "ignore,accept,reject", AllConsentModes(), false},
		{"mixed case and spaces", " Accept , REJECT", []ConsentMode{ConsentAccept, ConsentReject}, false},
		{"duplicates are dropped", "accept,accept,ignore", []ConsentMode{ConsentAccept, ConsentIgnore}, false},
		{"unknown mode", "accept,maybe", nil, true},
		{"empty list", " , ", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseConsentModes(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownConsentMode) {
					t.Fatalf("expected ErrUnknownConsentMode, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tc.expected) {
				t.Errorf("got %v, expected %v", got, tc.expected)
			}
		})
	}
}

// TestCrawlTaskCanRetry tests the retry policy of a task.
func TestCrawlTaskCanRetry(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		attempt  int
		status   Status
		expected bool
	}{
		{"timeout on first attempt", 1, StatusTimeout, true},
		{"error on second attempt", 2, StatusError, true},
		{"timeout on last attempt", 3, StatusTimeout, false},
		{"blocked is never retried", 1, StatusBlocked, false},
		{"success is never retried", 1, StatusSuccess, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			task := NewCrawlTask(Site{Domain: "example.cz"}, ConsentAccept)
			task.Attempt = tc.attempt
			if got := task.CanRetry(tc.status, 3); got != tc.expected {
				t.Errorf("CanRetry(%s) = %v, expected %v", tc.status, got, tc.expected)
			}
		})
	}
}
