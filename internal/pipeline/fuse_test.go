package pipeline

import (
	"math"
	"testing"

	"rosterparse/internal"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFuseHighestConfidenceWins(t *testing.T) {
	f := NewFuser(0.07)
	fused := f.Fuse([]internal.FieldCandidate{
		{Field: internal.FieldProviderName, Value: "J. Smith", Source: internal.SourceEntity, Confidence: 0.6},
		{Field: internal.FieldProviderName, Value: "Jane Smith", Source: internal.SourceTable, Confidence: 0.95},
	})

	got := fused[internal.FieldProviderName]
	if got.Value != "Jane Smith" || got.Confidence != 0.95 {
		t.Fatalf("fused = %+v", got)
	}
	if len(got.Candidates) != 2 {
		t.Fatalf("provenance dropped: %+v", got.Candidates)
	}
}

func TestFuseSourceTieBreak(t *testing.T) {
	f := NewFuser(0.07)
	fused := f.Fuse([]internal.FieldCandidate{
		{Field: internal.FieldPhone, Value: "555-111-2222", Source: internal.SourceEntity, Confidence: 0.8, Pos: 0},
		{Field: internal.FieldPhone, Value: "555-333-4444", Source: internal.SourcePattern, Confidence: 0.8, Pos: 50},
		{Field: internal.FieldPhone, Value: "555-555-6666", Source: internal.SourceTable, Confidence: 0.8, Pos: 10},
	})

	if got := fused[internal.FieldPhone]; got.Value != "555-333-4444" {
		t.Fatalf("pattern should win the tie: %+v", got)
	}
}

func TestFuseAgreementBonus(t *testing.T) {
	f := NewFuser(0.07)
	fused := f.Fuse([]internal.FieldCandidate{
		{Field: internal.FieldProviderNPI, Value: "1234567893", Source: internal.SourcePattern, Confidence: 0.9},
		{Field: internal.FieldProviderNPI, Value: "1234567893", Source: internal.SourceTable, Confidence: 0.95},
	})

	got := fused[internal.FieldProviderNPI]
	if got.Confidence != 1.0 {
		t.Fatalf("agreement bonus not applied or not capped: %v", got.Confidence)
	}

	// Same source twice is corroboration of nothing.
	fused = f.Fuse([]internal.FieldCandidate{
		{Field: internal.FieldProviderNPI, Value: "1234567893", Source: internal.SourcePattern, Confidence: 0.9, Pos: 0},
		{Field: internal.FieldProviderNPI, Value: "1234567893", Source: internal.SourcePattern, Confidence: 0.5, Pos: 40},
	})
	if got := fused[internal.FieldProviderNPI]; got.Confidence != 0.9 {
		t.Fatalf("same-source bonus applied: %v", got.Confidence)
	}
}

func TestFuseAgreementUsesNormalizedValues(t *testing.T) {
	f := NewFuser(0.07)
	fused := f.Fuse([]internal.FieldCandidate{
		{Field: internal.FieldPhone, Value: "555-123-4567", Source: internal.SourcePattern, Confidence: 0.9},
		{Field: internal.FieldPhone, Value: "(555) 123-4567", Source: internal.SourceTable, Confidence: 0.75},
	})

	got := fused[internal.FieldPhone]
	if got.Value != "555-123-4567" {
		t.Fatalf("winner = %q", got.Value)
	}
	if !almostEqual(got.Confidence, 0.97) {
		t.Fatalf("normalized agreement not detected: %v", got.Confidence)
	}
}

func TestFuseEmptyFieldStaysNull(t *testing.T) {
	f := NewFuser(0.07)
	fused := f.Fuse(nil)

	if len(fused) != len(internal.FieldOrder) {
		t.Fatalf("expected one fused field per column, got %d", len(fused))
	}
	got := fused[internal.FieldFax]
	if got.Value != "" || got.Confidence != 0 || got.Status != internal.StatusUnchecked {
		t.Fatalf("null field = %+v", got)
	}
	if got.Field != internal.FieldFax {
		t.Fatalf("field name lost: %+v", got)
	}
}
