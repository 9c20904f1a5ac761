// Package selector decides which collected releases make it into the
// calendar. Policies run independently per bucket and never mutate their
// input.
package selector

import (
	"fmt"
	"sort"

	"ukmoviecal/internal/model"
)

// DefaultTopN is the number of releases kept per bucket in rank mode.
const DefaultTopN = 5

// Policy selects a subset of one bucket's releases.
type Policy interface {
	Select(releases []model.Release) []model.Release
}

// Rank keeps the TopN most popular releases. Equal popularity keeps
// collection order. TopN <= 0 keeps everything, sorted.
type Rank struct {
	TopN int
}

func (p Rank) Select(releases []model.Release) []model.Release {
	out := make([]model.Release, len(releases))
	copy(out, releases)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Popularity > out[j].Popularity
	})

	if p.TopN > 0 && len(out) > p.TopN {
		out = out[:p.TopN]
	}
	return out
}

// Threshold keeps releases whose popularity and vote count both reach the
// minimums (inclusive). Order is preserved.
type Threshold struct {
	MinPopularity float64
	MinVoteCount  int
}

func (p Threshold) Select(releases []model.Release) []model.Release {
	out := make([]model.Release, 0, len(releases))
	for _, r := range releases {
		if r.Popularity >= p.MinPopularity && r.VoteCount >= p.MinVoteCount {
			out = append(out, r)
		}
	}
	return out
}

// Chain applies policies left to right.
type Chain []Policy

func (c Chain) Select(releases []model.Release) []model.Release {
	out := releases
	for _, p := range c {
		out = p.Select(out)
	}
	return out
}

// Mode names a selection policy in configuration.
type Mode string

const (
	ModeRank      Mode = "rank"
	ModeThreshold Mode = "threshold"
	ModeBoth      Mode = "both"
)

// Options is the configuration-facing view of a policy.
type Options struct {
	Mode          Mode
	TopN          int
	MinPopularity float64
	MinVoteCount  int
}

// New builds the policy named by opts.Mode.
func New(opts Options) (Policy, error) {
	topN := opts.TopN
	if topN == 0 {
		topN = DefaultTopN
	}
	th := Threshold{MinPopularity: opts.MinPopularity, MinVoteCount: opts.MinVoteCount}

	switch opts.Mode {
	case ModeRank, "":
		return Rank{TopN: topN}, nil
	case ModeThreshold:
		return th, nil
	case ModeBoth:
		return Chain{th, Rank{TopN: topN}}, nil
	default:
		return nil, fmt.Errorf("selector: unknown mode %q", opts.Mode)
	}
}

// SelectBuckets applies p to every bucket on its own.
func SelectBuckets(buckets []model.Bucket, p Policy) []model.Bucket {
	out := make([]model.Bucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, model.Bucket{
			Window:   b.Window,
			Releases: p.Select(b.Releases),
		})
	}
	return out
}
