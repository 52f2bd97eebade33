package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/teslashibe/go-jarvis/pkg/inference"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		indonesian bool
		want       string
	}{
		{"no keys", inference.ErrNoKeys, false, msgNoKeys.en},
		{"no keys wrapped id", fmt.Errorf("pool: %w", inference.ErrNoKeys), true, msgNoKeys.id},
		{"deadline", context.DeadlineExceeded, false, msgTimeout.en},
		{"attempt timeout", &inference.PoolError{Attempts: 1, Errors: []error{inference.ErrAttemptTimeout}}, true, msgTimeout.id},
		{"other", errors.New("firestore: permission denied on users/u1"), false, msgSystemError.en},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage(tt.err, tt.indonesian); got != tt.want {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
