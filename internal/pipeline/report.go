package pipeline

import (
	"time"

	"douyin-image-miner/internal/douyin"
)

// Stage is the last step an asset reached.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageDecode  Stage = "decode"
	StageSegment Stage = "segment"
	StageExport  Stage = "export"
	StageDone    Stage = "done"
)

// AssetOutcome is the per-image result of a run. Err is nil only when Stage
// is StageDone.
type AssetOutcome struct {
	Ordinal     int
	SourceURL   string
	Path        string
	ContentHash string
	Width       int
	Height      int
	Cached      bool
	Stage       Stage
	Err         error
}

func (o AssetOutcome) OK() bool { return o.Err == nil && o.Stage == StageDone }

type Report struct {
	RunID      string
	ShareText  string
	Product    douyin.ResolvedProduct
	Strategy   string
	DryRun     bool
	Outcomes   []AssetOutcome
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

func (r Report) Failed() []AssetOutcome {
	var out []AssetOutcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}
