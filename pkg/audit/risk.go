package audit

import (
	"time"

	"github.com/doodlesbykumbi/clinicguard/pkg/model"
)

// Weights are the risk score inputs. All of them are tunable configuration.
type Weights struct {
	Normal    int
	Sensitive int
	Critical  int

	Read   int
	Write  int
	Delete int
	Admin  int

	Error    int
	Burst    int
	OffHours int

	// BurstThreshold is the number of prior events from the same actor
	// inside BurstWindow that adds the Burst weight.
	BurstThreshold int
	BurstWindow    time.Duration

	// BusinessStart and BusinessEnd bound the business-hours window in
	// hours [start, end) of Location. Start == End means always business
	// hours.
	BusinessStart int
	BusinessEnd   int
	Location      *time.Location
}

// DefaultWeights returns the stock weights.
func DefaultWeights() Weights {
	return Weights{
		Normal:         5,
		Sensitive:      25,
		Critical:       45,
		Read:           0,
		Write:          10,
		Delete:         20,
		Admin:          25,
		Error:          15,
		Burst:          20,
		OffHours:       10,
		BurstThreshold: 5,
		BurstWindow:    60 * time.Second,
		BusinessStart:  8,
		BusinessEnd:    18,
		Location:       time.Local,
	}
}

// Factors are the inputs to one score.
type Factors struct {
	Sensitivity model.Sensitivity
	Operation   model.Operation
	Failed      bool
	Burst       bool
	At          time.Time
}

func (w Weights) base(s model.Sensitivity) int {
	switch s {
	case model.Normal:
		return w.Normal
	case model.Sensitive:
		return w.Sensitive
	}
	return w.Critical
}

func (w Weights) operation(o model.Operation) int {
	switch o {
	case model.OpRead:
		return w.Read
	case model.OpWrite:
		return w.Write
	case model.OpDelete:
		return w.Delete
	}
	return w.Admin
}

// OutsideBusinessHours reports whether t falls outside the business-hours window. A
// window that wraps midnight (start > end) is supported.
func (w Weights) OutsideBusinessHours(t time.Time) bool {
	if w.BusinessStart == w.BusinessEnd {
		return false
	}
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	hour := t.In(loc).Hour()
	if w.BusinessStart < w.BusinessEnd {
		return hour < w.BusinessStart || hour >= w.BusinessEnd
	}
	return hour < w.BusinessStart && hour >= w.BusinessEnd
}

// Score computes the risk score of f, clamped to [0, 100]. Unknown
// sensitivities score as CRITICAL and unknown operations as ADMIN.
func (w Weights) Score(f Factors) int {
	score := w.base(f.Sensitivity) + w.operation(f.Operation)
	if f.Failed {
		score += w.Error
	}
	if f.Burst {
		score += w.Burst
	}
	if w.OutsideBusinessHours(f.At) {
		score += w.OffHours
	}
	return clamp(score, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
