// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package limitless

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   Category
	}{
		{504, CategoryTimeout},
		{500, CategoryServer},
		{502, CategoryUnknown},
		{503, CategoryUnknown},
		{599, CategoryUnknown},
		{401, CategoryAuth},
		{403, CategoryAuth},
		{400, CategoryClient},
		{404, CategoryClient},
		{422, CategoryClient},
		{429, CategoryClient},
		{200, CategoryUnknown},
		{302, CategoryUnknown},
		{0, CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if got := Classify(tt.status); got != tt.want {
				t.Errorf("Classify(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestCategoryOf(t *testing.T) {
	apiErr := newStatusError(504, []byte("upstream timeout"))
	if got := CategoryOf(apiErr); got != CategoryTimeout {
		t.Errorf("CategoryOf(504 error) = %q, want timeout", got)
	}

	wrapped := fmt.Errorf("fetch page: %w", apiErr)
	if got := CategoryOf(wrapped); got != CategoryTimeout {
		t.Errorf("CategoryOf(wrapped 504) = %q, want timeout", got)
	}

	if got := CategoryOf(errors.New("plain")); got != CategoryUnknown {
		t.Errorf("CategoryOf(plain error) = %q, want unknown", got)
	}
	if got := CategoryOf(nil); got != CategoryUnknown {
		t.Errorf("CategoryOf(nil) = %q, want unknown", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", newStatusError(504, nil), true},
		{"server", newStatusError(500, nil), true},
		{"auth", newStatusError(401, nil), false},
		{"client", newStatusError(404, nil), false},
		{"transport", newTransportError(errors.New("dial tcp: refused")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := newStatusError(403, []byte(`{"error":"invalid key"}`))
	msg := err.Error()
	for _, want := range []string{"auth", "403", "invalid key"} {
		if !contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}

	long := make([]byte, maxErrorBodyLen*2)
	for i := range long {
		long[i] = 'x'
	}
	truncated := newStatusError(500, long)
	if len(truncated.Body) > maxErrorBodyLen+3 {
		t.Errorf("body not truncated: len=%d", len(truncated.Body))
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
