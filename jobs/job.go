// Package jobs is the asynchronous execution pipeline: the Scheduler records
// a pending job and enqueues a work item, a Worker pool dequeues items, runs
// them on the backend and writes exactly one terminal outcome per job.
package jobs

import (
	"strings"
	"time"

	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/qerr"
	"github.com/perclft/qcircuit/source"
)

// ------------------------------------------------------------------
// Job Representation
// ------------------------------------------------------------------

type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusComplete || s == StatusFailed }

// Histogram maps a measured bitstring to the number of shots producing it.
type Histogram map[string]int

// Total is the number of shots folded into h.
func (h Histogram) Total() int {
	n := 0
	for _, c := range h {
		n += c
	}
	return n
}

// Job is the stored record of one submission.
type Job struct {
	ID          string    `json:"id"`
	Backend     string    `json:"backend"`
	Shots       int       `json:"shots"`
	Status      Status    `json:"status"`
	Result      Histogram `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

func (j Job) Complete() bool { return j.Status == StatusComplete }

// Apply returns j with the terminal outcome o written over it.
func (j Job) Apply(o Outcome) Job {
	j.Status = o.Status
	j.Result = o.Result
	j.Error = o.Error
	j.ErrorKind = o.ErrorKind
	j.CompletedAt = o.CompletedAt
	return j
}

// View is what a client polling for a result sees.
type View struct {
	ID       string    `json:"id"`
	Complete bool      `json:"complete"`
	Status   Status    `json:"status"`
	Result   Histogram `json:"result,omitempty"`
	Backend  string    `json:"backend,omitempty"`
	Shots    int       `json:"shots,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func (j Job) View() View {
	v := View{ID: j.ID, Complete: j.Complete(), Status: j.Status}
	switch j.Status {
	case StatusComplete:
		v.Result, v.Backend, v.Shots = j.Result, j.Backend, j.Shots
	case StatusFailed:
		v.Error = j.Error
	}
	return v
}

// Outcome is the single terminal write a job receives.
type Outcome struct {
	Status      Status
	Result      Histogram
	Error       string
	ErrorKind   string
	CompletedAt time.Time
}

func Succeeded(h Histogram, at time.Time) Outcome {
	return Outcome{Status: StatusComplete, Result: h, CompletedAt: at}
}

func Failed(err error, at time.Time) Outcome {
	return Outcome{
		Status:      StatusFailed,
		Error:       err.Error(),
		ErrorKind:   qerr.KindOf(err).String(),
		CompletedAt: at,
	}
}

// WorkItem is the self-contained unit a worker needs to execute a job.
type WorkItem struct {
	JobID      string           `json:"job_id"`
	Backend    string           `json:"backend"`
	Shots      int              `json:"shots"`
	Circuit    *circuit.Circuit `json:"circuit,omitempty"`
	Source     *source.Spec     `json:"source,omitempty"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// FoldHistogram counts identical shots. Each shot's key is the bits of all
// its measurements concatenated in measurement order.
func FoldHistogram(shots []backends.Shot) Histogram {
	h := make(Histogram)
	var sb strings.Builder
	for _, shot := range shots {
		sb.Reset()
		for _, m := range shot {
			for _, b := range m.Bits {
				if b {
					sb.WriteByte('1')
				} else {
					sb.WriteByte('0')
				}
			}
		}
		h[sb.String()]++
	}
	return h
}
