package domain

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	m "fracture.dev/pkg/fracture/internal/model"
)

// CostFunc prices one candidate element. Costs must be positive.
type CostFunc func(schema *m.Schema, id m.NodeID) float64

// OccurrenceCost prices an element by the number of schema nodes sharing its
// type name, so widely reused element types cost more to pick.
func OccurrenceCost() CostFunc {
	return func(schema *m.Schema, id m.NodeID) float64 {
		return float64(schema.OccurrenceCount(id))
	}
}

// OrderCost prices an element by its 1-based rank among the candidates.
func OrderCost() CostFunc {
	return func(schema *m.Schema, id m.NodeID) float64 {
		for i, candidate := range schema.Elements() {
			if candidate == id {
				return float64(i + 1)
			}
		}

		return 0
	}
}

// TableCost looks an element up by path, then by type name, then by name,
// and falls back to fallback (occurrence count when nil).
func TableCost(table map[string]float64, fallback CostFunc) CostFunc {
	if fallback == nil {
		fallback = OccurrenceCost()
	}

	return func(schema *m.Schema, id m.NodeID) float64 {
		n := schema.Node(id)

		for _, key := range []string{schema.PathOf(id).String(), n.TypeName, n.Name} {
			if key == "" {
				continue
			}

			if cost, ok := table[key]; ok {
				return cost
			}
		}

		return fallback(schema, id)
	}
}

type selectOptions struct {
	minFields int
	maxFields int
}

// SelectOption configures Select.
type SelectOption func(*selectOptions)

// WithFieldBounds keeps only candidates covering between minFields and
// maxFields leaves. A zero bound is open.
func WithFieldBounds(minFields, maxFields int) SelectOption {
	return func(o *selectOptions) {
		o.minFields = minFields
		o.maxFields = maxFields
	}
}

type candidate struct {
	id     m.NodeID
	cost   float64
	leaves []string
}

// Select picks a low-cost set of elements whose leaves cover every leaf of
// the schema. It runs weighted greedy set cover, preferring the element with
// the most newly covered leaves per unit of cost and the earlier declared one
// on ties, then drops elements made redundant by later picks.
func Select(schema *m.Schema, cost CostFunc, opts ...SelectOption) (m.CoverageSet, error) {
	options := selectOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if cost == nil {
		cost = OccurrenceCost()
	}

	leaves := schema.Leaves()
	if len(leaves) == 0 {
		return m.CoverageSet{}, &m.StructuralError{Err: m.ErrEmptySchema}
	}

	candidates, err := collectCandidates(schema, cost, options)
	if err != nil {
		return m.CoverageSet{}, err
	}

	if err := checkReachable(leaves, candidates); err != nil {
		return m.CoverageSet{}, err
	}

	picked := greedyCover(len(leaves), candidates)
	picked = pruneRedundant(picked)

	result := m.CoverageSet{Leaves: leaves, Candidates: len(candidates)}
	covered := make(map[string]bool, len(leaves))

	for _, c := range picked {
		element := m.CoveredElement{
			Node:     c.id,
			Path:     schema.PathOf(c.id),
			TypeName: schema.Node(c.id).TypeName,
			Cost:     c.cost,
			Covers:   schema.LeavesOf(c.id),
		}

		for _, leaf := range c.leaves {
			if !covered[leaf] {
				covered[leaf] = true
				element.NewlyCovered++
			}
		}

		result.Selected = append(result.Selected, element)
		result.TotalCost += c.cost
	}

	slog.Debug("Coverage selected", "elements", len(result.Selected), "candidates", len(candidates), "leaves", len(leaves), "cost", result.TotalCost)

	return result, nil
}

func collectCandidates(schema *m.Schema, cost CostFunc, options selectOptions) ([]candidate, error) {
	var candidates []candidate

	for _, id := range schema.Elements() {
		leaves := schema.LeavesOf(id)
		if options.minFields > 0 && len(leaves) < options.minFields {
			continue
		}

		if options.maxFields > 0 && len(leaves) > options.maxFields {
			continue
		}

		price := cost(schema, id)
		if !(price > 0) {
			return nil, &m.StructuralError{
				Element: schema.PathOf(id).String(),
				Err:     fmt.Errorf("%w: got %v", m.ErrInvalidCost, price),
			}
		}

		keys := make([]string, len(leaves))
		for i, leaf := range leaves {
			keys[i] = leaf.String()
		}

		candidates = append(candidates, candidate{id: id, cost: price, leaves: keys})
	}

	return candidates, nil
}

func checkReachable(leaves []m.FieldPath, candidates []candidate) error {
	reachable := make(map[string]bool)

	for _, c := range candidates {
		for _, leaf := range c.leaves {
			reachable[leaf] = true
		}
	}

	var missing []string

	for _, leaf := range leaves {
		if !reachable[leaf.String()] {
			missing = append(missing, leaf.String())
		}
	}

	if len(missing) > 0 {
		return &m.StructuralError{Field: strings.Join(missing, ", "), Err: m.ErrUnreachableLeaf}
	}

	return nil
}

func greedyCover(total int, candidates []candidate) []candidate {
	covered := make(map[string]bool, total)
	used := make([]bool, len(candidates))

	var picked []candidate

	for len(covered) < total {
		best := -1
		bestRatio := 0.0

		for i, c := range candidates {
			if used[i] {
				continue
			}

			fresh := 0

			for _, leaf := range c.leaves {
				if !covered[leaf] {
					fresh++
				}
			}

			if fresh == 0 {
				continue
			}

			if ratio := float64(fresh) / c.cost; best < 0 || ratio > bestRatio {
				best, bestRatio = i, ratio
			}
		}

		if best < 0 {
			break
		}

		used[best] = true
		picked = append(picked, candidates[best])

		for _, leaf := range candidates[best].leaves {
			covered[leaf] = true
		}
	}

	return picked
}

// pruneRedundant walks the picks newest first and drops every element whose
// leaves all stay covered by the others.
func pruneRedundant(picked []candidate) []candidate {
	counts := make(map[string]int)

	for _, c := range picked {
		for _, leaf := range c.leaves {
			counts[leaf]++
		}
	}

	keep := make([]bool, len(picked))

	for i := len(picked) - 1; i >= 0; i-- {
		redundant := true

		for _, leaf := range picked[i].leaves {
			if counts[leaf] < 2 {
				redundant = false
				break
			}
		}

		if redundant {
			for _, leaf := range picked[i].leaves {
				counts[leaf]--
			}

			continue
		}

		keep[i] = true
	}

	out := make([]candidate, 0, len(picked))

	for i, c := range picked {
		if keep[i] {
			out = append(out, c)
		}
	}

	return out
}

// BoundsGrid is the search space of SearchBounds: every minimum in
// MinFrom..MinTo paired with every maximum in MaxFrom..MaxTo, Step apart,
// that is not below the minimum.
type BoundsGrid struct {
	MinFrom int
	MinTo   int
	MaxFrom int
	MaxTo   int
	Step    int
}

// GridFor spans both bounds over 1..the leaf count of the widest element.
func GridFor(schema *m.Schema, step int) BoundsGrid {
	widest := 1
	for _, id := range schema.Elements() {
		widest = max(widest, len(schema.LeavesOf(id)))
	}

	return BoundsGrid{MinFrom: 1, MinTo: widest, MaxFrom: 1, MaxTo: widest, Step: max(step, 1)}
}

func (g BoundsGrid) points() [][2]int {
	step := max(g.Step, 1)

	var out [][2]int

	for lo := g.MinFrom; lo <= g.MinTo; lo++ {
		for hi := g.MaxFrom; hi <= g.MaxTo; hi += step {
			if hi >= lo {
				out = append(out, [2]int{lo, hi})
			}
		}
	}

	return out
}

// Score bands for bounds search. A selection is rewarded for coverage first,
// then for landing in the ideal element and field pair ranges.
const (
	idealElementsLow  = 50
	idealElementsHigh = 150
	idealPairsLow     = 1000
	idealPairsHigh    = 5000
)

// SearchBounds runs the bounded selection for every point of grid and
// returns the results best score first. Unlike Select it accepts bounds that
// leave leaves uncovered and scores them lower.
func SearchBounds(schema *m.Schema, cost CostFunc, grid BoundsGrid) ([]m.FieldBounds, error) {
	if cost == nil {
		cost = OccurrenceCost()
	}

	leaves := schema.Leaves()
	if len(leaves) == 0 {
		return nil, &m.StructuralError{Err: m.ErrEmptySchema}
	}

	points := grid.points()
	if len(points) == 0 {
		return nil, fmt.Errorf("empty bounds grid %+v", grid)
	}

	results := make([]m.FieldBounds, 0, len(points))

	for _, p := range points {
		candidates, err := collectCandidates(schema, cost, selectOptions{minFields: p[0], maxFields: p[1]})
		if err != nil {
			return nil, err
		}

		picked := pruneRedundant(greedyCover(len(leaves), candidates))

		result := m.FieldBounds{MinFields: p[0], MaxFields: p[1], Elements: len(picked)}
		covered := make(map[string]bool, len(leaves))

		for _, c := range picked {
			result.Pairs += len(c.leaves) * (len(c.leaves) - 1) / 2

			for _, leaf := range c.leaves {
				covered[leaf] = true
			}
		}

		result.Covered = len(covered)
		result.Coverage = float64(result.Covered) * 100 / float64(len(leaves))
		result.Score = boundsScore(result.Coverage, result.Elements, result.Pairs)

		slog.Debug("Bounds scored", "min", p[0], "max", p[1], "elements", result.Elements, "coverage", result.Coverage, "score", result.Score)

		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results, nil
}

func boundsScore(coverage float64, elements, pairs int) float64 {
	var elementScore float64

	switch {
	case elements < idealElementsLow:
		elementScore = 50 + float64(elements)
	case elements <= idealElementsHigh:
		elementScore = 100
	default:
		elementScore = max(0, 250-float64(elements))
	}

	var pairScore float64

	switch {
	case pairs < idealPairsLow:
		pairScore = 50 + float64(pairs)/20
	case pairs <= idealPairsHigh:
		pairScore = 100
	default:
		pairScore = max(0, 600-float64(pairs)/100)
	}

	return coverage*10 + elementScore*0.3 + pairScore*0.2
}
