package quest

import "fmt"

// Gate is the slice of quest state an unlock policy evaluates.
type Gate struct {
	Points       int
	TrackCount   int
	VisibleLimit int
	MaxTracks    int
	HasNext      bool
}

// Outcome describes what a permitted unlock does. Gate rejections carry
// no outcome: a rejected unlock is a silent no-op, not an error.
type Outcome struct {
	Spend       int
	RevealDelta int
	FetchNext   bool
}

// Policy is the unlock economy. Two were observed in the wild and both
// stay supported; the choice is configuration, made at quest start.
type Policy interface {
	Name() string
	// InitialVisible is the reveal window for a fresh quest.
	InitialVisible(pageSize int) int
	// VisibleCount bounds how many fetched tracks the presentation sees.
	VisibleCount(trackCount, visibleLimit int) int
	// NextCost is the currency needed for the next unlock to pass.
	NextCost(g Gate) int
	// Evaluate returns the unlock outcome, or false when the gate fails.
	Evaluate(g Gate) (Outcome, bool)
}

const (
	PolicyNameBatch    = "batch"
	PolicyNamePerTrack = "pertrack"
)

// NewPolicy builds the configured policy by name.
func NewPolicy(name string, unitCost, batchSize int) (Policy, error) {
	if unitCost <= 0 {
		return nil, fmt.Errorf("quest: unit cost must be > 0, got %d", unitCost)
	}
	switch name {
	case PolicyNameBatch:
		if batchSize <= 0 {
			return nil, fmt.Errorf("quest: batch size must be > 0, got %d", batchSize)
		}
		return &BatchPolicy{UnitCost: unitCost, BatchSize: batchSize}, nil
	case PolicyNamePerTrack:
		return &PerTrackPolicy{UnitCost: unitCost}, nil
	}
	return nil, fmt.Errorf("quest: unknown unlock policy %q", name)
}

// BatchPolicy gates on a threshold that scales with how many batches are
// already fetched. A passing unlock fetches the next page outright and
// spends nothing; every fetched track is visible.
type BatchPolicy struct {
	UnitCost  int
	BatchSize int
}

func (p *BatchPolicy) Name() string { return PolicyNameBatch }

func (p *BatchPolicy) InitialVisible(pageSize int) int { return pageSize }

func (p *BatchPolicy) VisibleCount(trackCount, _ int) int { return trackCount }

func (p *BatchPolicy) NextCost(g Gate) int {
	return p.UnitCost * (g.TrackCount/p.BatchSize + 1)
}

func (p *BatchPolicy) Evaluate(g Gate) (Outcome, bool) {
	if g.Points < p.NextCost(g) {
		return Outcome{}, false
	}
	if !g.HasNext || g.TrackCount >= g.MaxTracks {
		return Outcome{}, false
	}
	return Outcome{FetchNext: true}, true
}

// PerTrackPolicy charges a flat unit cost and reveals exactly one more of
// the already-fetched tracks, fetching another page once the reveal
// window outruns what is loaded.
type PerTrackPolicy struct {
	UnitCost int
}

func (p *PerTrackPolicy) Name() string { return PolicyNamePerTrack }

func (p *PerTrackPolicy) InitialVisible(pageSize int) int { return pageSize }

func (p *PerTrackPolicy) VisibleCount(trackCount, visibleLimit int) int {
	if visibleLimit < trackCount {
		return visibleLimit
	}
	return trackCount
}

func (p *PerTrackPolicy) NextCost(Gate) int { return p.UnitCost }

func (p *PerTrackPolicy) Evaluate(g Gate) (Outcome, bool) {
	if g.Points < p.UnitCost {
		return Outcome{}, false
	}
	if g.VisibleLimit >= g.TrackCount && !g.HasNext {
		// Nothing left to reveal and nothing left to fetch.
		return Outcome{}, false
	}
	newLimit := g.VisibleLimit + 1
	return Outcome{
		Spend:       p.UnitCost,
		RevealDelta: 1,
		FetchNext:   newLimit > g.TrackCount && g.HasNext,
	}, true
}
