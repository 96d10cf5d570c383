// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-signet.
//
// go-signet is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package correlation

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestWithCorrelationID(t *testing.T) {
	tests := []struct {
		name          string
		ctx           context.Context
		correlationID string
		want          string
	}{
		{
			name:          "Add correlation ID to context",
			ctx:           context.Background(),
			correlationID: "test-correlation-id",
			want:          "test-correlation-id",
		},
		{
			name:          "Add correlation ID to nil context",
			ctx:           nil,
			correlationID: "test-correlation-id-2",
			want:          "test-correlation-id-2",
		},
		{
			name:          "Add empty correlation ID",
			ctx:           context.Background(),
			correlationID: "",
			want:          "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithCorrelationID(tt.ctx, tt.correlationID)
			if ctx == nil {
				t.Fatal("WithCorrelationID returned nil context")
			}
			got := GetCorrelationID(ctx)
			if got != tt.want {
				t.Errorf("GetCorrelationID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetCorrelationID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{
			name: "Get correlation ID from context",
			ctx:  WithCorrelationID(context.Background(), "test-id"),
			want: "test-id",
		},
		{
			name: "Get from context without correlation ID",
			ctx:  context.Background(),
			want: "",
		},
		{
			name: "Get from nil context",
			ctx:  nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetCorrelationID(tt.ctx)
			if got != tt.want {
				t.Errorf("GetCorrelationID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		got := NewID()

		// Verify it's a valid UUID
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("NewID() returned invalid UUID: %v, error: %v", got, err)
		}

		// Verify it's unique
		if seen[got] {
			t.Errorf("NewID() returned duplicate ID: %v", got)
		}
		seen[got] = true

		if got == "" {
			t.Error("NewID() returned empty string")
		}
	}
}

func TestGetOrGenerate(t *testing.T) {
	existingID := "existing-correlation-id"

	tests := []struct {
		name      string
		ctx       context.Context
		wantExact string
		wantNew   bool
	}{
		{
			name:      "Get existing correlation ID",
			ctx:       WithCorrelationID(context.Background(), existingID),
			wantExact: existingID,
			wantNew:   false,
		},
		{
			name:      "Generate new correlation ID from context without one",
			ctx:       context.Background(),
			wantExact: "",
			wantNew:   true,
		},
		{
			name:      "Generate new correlation ID from nil context",
			ctx:       nil,
			wantExact: "",
			wantNew:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetOrGenerate(tt.ctx)

			if tt.wantNew {
				if _, err := uuid.Parse(got); err != nil {
					t.Errorf("GetOrGenerate() returned invalid UUID: %v, error: %v", got, err)
				}
				if got == "" {
					t.Error("GetOrGenerate() returned empty string when new ID expected")
				}
			} else {
				if got != tt.wantExact {
					t.Errorf("GetOrGenerate() = %v, want %v", got, tt.wantExact)
				}
			}
		})
	}
}

func TestCorrelationIDPropagation(t *testing.T) {
	// Correlation IDs must survive context chaining.
	correlationID := "parent-correlation-id"

	parentCtx := WithCorrelationID(context.Background(), correlationID)

	type testKey string
	childCtx := context.WithValue(parentCtx, testKey("test-key"), "test-value")

	got := GetCorrelationID(childCtx)
	if got != correlationID {
		t.Errorf("Correlation ID not propagated to child context, got %v, want %v", got, correlationID)
	}
}

func TestContextKeyIsolation(t *testing.T) {
	// A plain string key with the same spelling must not collide with
	// the typed context key.
	correlationID := "test-correlation-id"

	ctx := context.Background()
	ctx = context.WithValue(ctx, "correlation-id", "wrong-value") //nolint:staticcheck
	ctx = WithCorrelationID(ctx, correlationID)

	got := GetCorrelationID(ctx)
	if got != correlationID {
		t.Errorf("Context key collision detected, got %v, want %v", got, correlationID)
	}
}

func TestConstants(t *testing.T) {
	if RequestIDHeader != "X-Request-ID" {
		t.Errorf("RequestIDHeader = %v, want X-Request-ID", RequestIDHeader)
	}
	if CorrelationIDHeader != "X-Correlation-ID" {
		t.Errorf("CorrelationIDHeader = %v, want X-Correlation-ID", CorrelationIDHeader)
	}
}

func BenchmarkNewID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewID()
	}
}

func BenchmarkGetCorrelationID(b *testing.B) {
	ctx := WithCorrelationID(context.Background(), NewID())
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		GetCorrelationID(ctx)
	}
}
