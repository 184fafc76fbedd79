// Package pipeline holds the deal-stage board: the stage registry, the deal
// store, the drag session controller and the engine that reconciles
// optimistic moves with the persistence backend.
package pipeline

import "sort"

type Stage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// StageRegistry is the ordered, read-only set of stages of a loaded board.
type StageRegistry struct {
	stages []Stage
	index  map[string]int
}

func NewStageRegistry(stages []Stage) *StageRegistry {
	ordered := make([]Stage, len(stages))
	copy(ordered, stages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	index := make(map[string]int, len(ordered))
	for i, stage := range ordered {
		index[stage.ID] = i
	}
	return &StageRegistry{stages: ordered, index: index}
}

// List returns the stages sorted by position. The slice is a copy.
func (r *StageRegistry) List() []Stage {
	if r == nil {
		return []Stage{}
	}
	out := make([]Stage, len(r.stages))
	copy(out, r.stages)
	return out
}

func (r *StageRegistry) Get(id string) (Stage, bool) {
	if r == nil {
		return Stage{}, false
	}
	i, ok := r.index[id]
	if !ok {
		return Stage{}, false
	}
	return r.stages[i], true
}

func (r *StageRegistry) Contains(id string) bool {
	_, ok := r.Get(id)
	return ok
}

func (r *StageRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.stages)
}
