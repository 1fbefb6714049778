package metrics

import (
	"fmt"
	"sort"
	"strings"

	"rosterparse/internal"
)

// Recorder accumulates stage timings, outcomes, and field coverage for one
// worker. It is not safe for concurrent use; each worker owns a Recorder and
// the batch merges them when the workers are done.
type Recorder struct {
	stages       map[string]*stageAgg
	fieldFound   map[internal.Field]int
	fieldValid   map[internal.Field]int
	messages     int
	transactions int
	partials     int
}

type stageAgg struct {
	count    int
	millis   float64
	outcomes map[internal.StageOutcome]int
}

func NewRecorder() *Recorder {
	return &Recorder{
		stages:     map[string]*stageAgg{},
		fieldFound: map[internal.Field]int{},
		fieldValid: map[internal.Field]int{},
	}
}

func (r *Recorder) RecordStage(m internal.StageMetric) {
	agg, ok := r.stages[m.Stage]
	if !ok {
		agg = &stageAgg{outcomes: map[internal.StageOutcome]int{}}
		r.stages[m.Stage] = agg
	}
	agg.count++
	agg.millis += m.Millis
	agg.outcomes[m.Outcome]++
}

func (r *Recorder) RecordMessage() {
	r.messages++
}

func (r *Recorder) RecordTransaction(tx internal.Transaction) {
	r.transactions++
	if tx.Partial {
		r.partials++
	}
	for field, fused := range tx.Fields {
		if fused.Value == "" {
			continue
		}
		r.fieldFound[field]++
		if fused.Status == internal.StatusValid {
			r.fieldValid[field]++
		}
	}
}

// Merge folds another recorder into this one. The other recorder's owner
// must be done with it.
func (r *Recorder) Merge(other *Recorder) {
	for stage, o := range other.stages {
		agg, ok := r.stages[stage]
		if !ok {
			agg = &stageAgg{outcomes: map[internal.StageOutcome]int{}}
			r.stages[stage] = agg
		}
		agg.count += o.count
		agg.millis += o.millis
		for outcome, n := range o.outcomes {
			agg.outcomes[outcome] += n
		}
	}
	for field, n := range other.fieldFound {
		r.fieldFound[field] += n
	}
	for field, n := range other.fieldValid {
		r.fieldValid[field] += n
	}
	r.messages += other.messages
	r.transactions += other.transactions
	r.partials += other.partials
}

// Timings returns the total milliseconds spent per stage, for run records.
func (r *Recorder) Timings() map[string]float64 {
	out := make(map[string]float64, len(r.stages))
	for stage, agg := range r.stages {
		out[stage] = agg.millis
	}
	return out
}

// Counts returns the headline counters, for run records.
func (r *Recorder) Counts() map[string]int {
	return map[string]int{
		"messages":     r.messages,
		"transactions": r.transactions,
		"partials":     r.partials,
	}
}

// Report renders a plain-text summary for the CLI.
func (r *Recorder) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "messages=%d transactions=%d partials=%d\n", r.messages, r.transactions, r.partials)

	stageNames := make([]string, 0, len(r.stages))
	for name := range r.stages {
		stageNames = append(stageNames, name)
	}
	sort.Strings(stageNames)
	for _, name := range stageNames {
		agg := r.stages[name]
		avg := 0.0
		if agg.count > 0 {
			avg = agg.millis / float64(agg.count)
		}
		fmt.Fprintf(&b, "stage %-10s runs=%d avgMs=%.1f ok=%d partial=%d failed=%d\n",
			name, agg.count, avg,
			agg.outcomes[internal.OutcomeOK], agg.outcomes[internal.OutcomePartial], agg.outcomes[internal.OutcomeFailed])
	}

	if r.transactions > 0 {
		for _, field := range internal.FieldOrder {
			found := r.fieldFound[field]
			if found == 0 {
				continue
			}
			fmt.Fprintf(&b, "field %-18s found=%d/%d valid=%d\n", field, found, r.transactions, r.fieldValid[field])
		}
	}
	return b.String()
}
