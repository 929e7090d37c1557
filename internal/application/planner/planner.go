// Package planner implements adaptive tag-filter strategy selection. It
// decides, from cached tag cardinality statistics, which of four SQL
// shapes the content repository should run for a given AND-query over a
// set of tags.
package planner

import (
	"context"
	"fmt"
	"sort"

	"github.com/pixforge/genflow/internal/config"
	"github.com/pixforge/genflow/internal/domain/repository"
)

// Strategy identifies one of the four admissible query shapes.
type Strategy int

const (
	// SelfJoin joins the junction to itself once per tag (K small).
	SelfJoin Strategy = iota
	// GroupHaving filters the junction by tag set then groups by content id.
	GroupHaving
	// TwoPhaseDualSeed seeds from the two rarest tags before grouping.
	TwoPhaseDualSeed
	// TwoPhaseSingleSeed seeds from the single rarest tag before grouping.
	TwoPhaseSingleSeed
)

func (s Strategy) String() string {
	switch s {
	case SelfJoin:
		return "self_join"
	case GroupHaving:
		return "group_having"
	case TwoPhaseDualSeed:
		return "two_phase_dual_seed"
	case TwoPhaseSingleSeed:
		return "two_phase_single_seed"
	default:
		return "unknown"
	}
}

// Decision is the planner's output for one query.
type Decision struct {
	Strategy Strategy
	// RankedTagIDs holds the deduplicated input tag ids sorted ascending by
	// cardinality (rarest first). Two-phase strategies seed from its head.
	RankedTagIDs []string
}

// Planner selects a strategy from the configured thresholds and the current
// tag cardinality stats.
type Planner struct {
	cfg   config.PlannerConfig
	stats repository.StatsRepository
}

// New creates a Planner.
func New(cfg config.PlannerConfig, stats repository.StatsRepository) *Planner {
	return &Planner{cfg: cfg, stats: stats}
}

// Select implements the strategy-selection table. tagIDs must already be
// deduplicated by the caller (K = len(tagIDs)); callers with K = 0 should
// skip the planner entirely and run plain keyset pagination.
func (p *Planner) Select(ctx context.Context, tagIDs []string, source string) (Decision, error) {
	if len(tagIDs) == 0 {
		return Decision{}, fmt.Errorf("planner: Select called with no tags")
	}

	cards, err := p.stats.TagCardinalities(ctx, tagIDs, source)
	if err != nil {
		return Decision{}, fmt.Errorf("planner: failed to load tag cardinalities: %w", err)
	}

	ranked := make([]string, len(tagIDs))
	copy(ranked, tagIDs)
	sort.Slice(ranked, func(i, j int) bool {
		return cardinalityOf(cards, ranked[i], p.cfg.FallbackDefaultCount) <
			cardinalityOf(cards, ranked[j], p.cfg.FallbackDefaultCount)
	})

	k := len(ranked)
	rarestCount := cardinalityOf(cards, ranked[0], p.cfg.FallbackDefaultCount)

	// The strategy table is evaluated top-to-bottom; each row's guard is
	// exclusive of the ones above it, so there is no runtime tie-break to
	// perform here beyond the ordering already encoded below.
	var strategy Strategy
	switch {
	case k <= p.cfg.SmallKThreshold:
		strategy = SelfJoin
	case rarestCount <= p.cfg.GroupHavingRarestCeiling:
		strategy = GroupHaving
	case rarestCount > p.cfg.TwoPhaseDualSeedFloor && k >= p.cfg.TwoPhaseMinKForDualSeed:
		strategy = TwoPhaseDualSeed
	default:
		strategy = TwoPhaseSingleSeed
	}

	return Decision{Strategy: strategy, RankedTagIDs: ranked}, nil
}

func cardinalityOf(cards map[string]int64, tagID string, fallback int64) int64 {
	if c, ok := cards[tagID]; ok {
		return c
	}
	return fallback
}
