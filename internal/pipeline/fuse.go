package pipeline

import (
	"sort"

	"rosterparse/internal"
	"rosterparse/internal/util"
)

var sourcePriority = map[internal.CandidateSource]int{
	internal.SourcePattern: 0,
	internal.SourceTable:   1,
	internal.SourceEntity:  2,
}

// Fuser folds per-source candidates into one FusedField per roster field.
// The highest-confidence candidate wins; when two independent sources agree
// on the same normalized value, the winner picks up a small bonus.
type Fuser struct {
	agreementBonus float64
}

func NewFuser(agreementBonus float64) *Fuser {
	return &Fuser{agreementBonus: agreementBonus}
}

func (f *Fuser) Fuse(candidates []internal.FieldCandidate) map[internal.Field]internal.FusedField {
	byField := make(map[internal.Field][]internal.FieldCandidate)
	for _, c := range candidates {
		byField[c.Field] = append(byField[c.Field], c)
	}

	fused := make(map[internal.Field]internal.FusedField, len(internal.FieldOrder))
	for _, field := range internal.FieldOrder {
		fused[field] = f.fuseField(field, byField[field])
	}
	return fused
}

func (f *Fuser) fuseField(field internal.Field, candidates []internal.FieldCandidate) internal.FusedField {
	if len(candidates) == 0 {
		return internal.FusedField{Field: field, Status: internal.StatusUnchecked}
	}

	ordered := make([]internal.FieldCandidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if sourcePriority[a.Source] != sourcePriority[b.Source] {
			return sourcePriority[a.Source] < sourcePriority[b.Source]
		}
		if a.Pos != b.Pos {
			return a.Pos < b.Pos
		}
		return a.Value < b.Value
	})

	winner := ordered[0]
	confidence := winner.Confidence
	if f.agrees(winner, ordered[1:]) {
		confidence += f.agreementBonus
		if confidence > 1 {
			confidence = 1
		}
	}

	return internal.FusedField{
		Field:      field,
		Value:      winner.Value,
		Confidence: confidence,
		Status:     internal.StatusUnchecked,
		Candidates: ordered,
	}
}

// agrees reports whether any candidate from a different source matches the
// winner's normalized value.
func (f *Fuser) agrees(winner internal.FieldCandidate, rest []internal.FieldCandidate) bool {
	winnerNorm := util.NormalizeValue(winner.Value)
	if winnerNorm == "" {
		return false
	}
	for _, c := range rest {
		if c.Source != winner.Source && util.NormalizeValue(c.Value) == winnerNorm {
			return true
		}
	}
	return false
}
