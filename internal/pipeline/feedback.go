package pipeline

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// status labels an Op's outcome at a stage, for both the zerolog snapshot
// and the prometheus counters.
type status string

const (
	statusOK      status = "ok"
	statusDropped status = "dropped"
	statusError   status = "error"
)

var stageNames = [numStages]string{
	GetID:      "GET_ID",
	GetInfoDB:  "GET_INFO_DB",
	GetInfoFS:  "GET_INFO_FS",
	ReportDiff: "REPORT_DIFF",
	Apply:      "APPLY",
	ReportRM:   "REPORT_RM",
}

// Feedback tallies per-stage, per-status op and byte counts with plain
// atomic counters, and mirrors them into prometheus on request. A zerolog
// snapshot can be emitted periodically by the caller.
type Feedback struct {
	ops   [numStages][3]atomic.Int64 // indexed by status
	bytes [numStages]atomic.Int64

	opsVec   *prometheus.CounterVec
	bytesVec *prometheus.CounterVec
}

func statusIndex(s status) int {
	switch s {
	case statusOK:
		return 0
	case statusDropped:
		return 1
	default:
		return 2
	}
}

// NewFeedback builds a Feedback and, if reg is non-nil, registers its
// prometheus vectors against reg.
func NewFeedback(reg prometheus.Registerer) *Feedback {
	f := &Feedback{
		opsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbh_pipeline_stage_ops_total",
			Help: "Pipeline ops processed per stage and outcome.",
		}, []string{"stage", "status"}),
		bytesVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbh_pipeline_stage_bytes_total",
			Help: "Bytes of entry data processed per pipeline stage.",
		}, []string{"stage"}),
	}
	if reg != nil {
		reg.MustRegister(f.opsVec, f.bytesVec)
	}
	return f
}

func (f *Feedback) record(stage Stage, st status, nbytes int64) {
	if stage < 0 || int(stage) >= int(numStages) {
		return
	}
	i := statusIndex(st)
	f.ops[stage][i].Add(1)
	if nbytes > 0 {
		f.bytes[stage].Add(nbytes)
	}
	f.opsVec.WithLabelValues(stageNames[stage], string(st)).Inc()
	if nbytes > 0 {
		f.bytesVec.WithLabelValues(stageNames[stage]).Add(float64(nbytes))
	}
}

// Snapshot returns the current ops-per-stage-and-status table, suitable
// for a periodic zerolog info line.
func (f *Feedback) Snapshot() map[string]int64 {
	out := make(map[string]int64, int(numStages)*3)
	for s := Stage(0); int(s) < int(numStages); s++ {
		for _, st := range []status{statusOK, statusDropped, statusError} {
			v := f.ops[s][statusIndex(st)].Load()
			if v != 0 {
				out[stageNames[s]+"."+string(st)] = v
			}
		}
	}
	return out
}

// LogSnapshot writes the current counters at info level, one field per
// non-zero stage/status pair.
func (f *Feedback) LogSnapshot() {
	ev := log.Info().Str("component", "pipeline")
	for k, v := range f.Snapshot() {
		ev = ev.Int64(k, v)
	}
	ev.Msg("pipeline feedback")
}
