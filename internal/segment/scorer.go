package segment

import (
	"math/bits"
	"sort"
	"strings"

	"github.com/go-dedup/simhash"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/pipeline"
)

const (
	minScore = 1.0
	maxScore = 10.0

	relevanceWeight  = 0.6
	engagementWeight = 0.4

	// Summaries whose simhash fingerprints are within this Hamming distance
	// are treated as the same statement and not concatenated twice.
	nearDupDistance = 3
)

// NormalizeScore maps a model-reported score onto the canonical 1-10 scale.
// Zero and negative values mean "no signal" and land at the floor, values up
// to and including 1 are treated as a 0-1 scale (so 1.0 maps to the ceiling),
// (1,10] passes through, (10,100] is treated as a percentage scale, and
// anything beyond clamps to the ceiling.
func NormalizeScore(v float64) float64 {
	switch {
	case v <= 0:
		return minScore
	case v <= 1:
		return minScore + v*(maxScore-minScore)
	case v <= maxScore:
		return v
	case v <= 100:
		return v / 10.0
	default:
		return maxScore
	}
}

// Composite combines normalized relevance and engagement into the ranking
// score.
func Composite(relevance, engagement float64) float64 {
	return relevanceWeight*relevance + engagementWeight*engagement
}

// Finalize normalizes scores, merges near-adjacent segments, enforces the
// minimum duration and returns the segments in both orderings: ranked by
// composite score descending and chronological. span bounds duration
// extension; pass zero when the total length is unknown.
func Finalize(segs []pipeline.Segment, cfg config.SegmentationConfig, span float64) (ranked, timeline []pipeline.Segment) {
	if len(segs) == 0 {
		return nil, nil
	}

	normalized := make([]pipeline.Segment, len(segs))
	copy(normalized, segs)
	for i := range normalized {
		normalized[i].RelevanceScore = NormalizeScore(normalized[i].RelevanceScore)
		normalized[i].EngagementScore = NormalizeScore(normalized[i].EngagementScore)
		normalized[i].CompositeScore = Composite(normalized[i].RelevanceScore, normalized[i].EngagementScore)
	}

	merged := merge(normalized, cfg.GapToleranceSec)
	return orderings(merged, cfg, span)
}

// Rank normalizes, extends and orders segments without merging. Synthetic
// equal-split segments are contiguous on purpose; the gap-tolerance merge
// would collapse them into a single span.
func Rank(segs []pipeline.Segment, cfg config.SegmentationConfig, span float64) (ranked, timeline []pipeline.Segment) {
	if len(segs) == 0 {
		return nil, nil
	}
	normalized := make([]pipeline.Segment, len(segs))
	copy(normalized, segs)
	for i := range normalized {
		normalized[i].RelevanceScore = NormalizeScore(normalized[i].RelevanceScore)
		normalized[i].EngagementScore = NormalizeScore(normalized[i].EngagementScore)
		normalized[i].CompositeScore = Composite(normalized[i].RelevanceScore, normalized[i].EngagementScore)
	}
	return orderings(normalized, cfg, span)
}

func orderings(merged []pipeline.Segment, cfg config.SegmentationConfig, span float64) (ranked, timeline []pipeline.Segment) {
	for i := range merged {
		merged[i] = extend(merged[i], cfg, span)
	}

	ranked = make([]pipeline.Segment, len(merged))
	copy(ranked, merged)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CompositeScore != ranked[j].CompositeScore {
			return ranked[i].CompositeScore > ranked[j].CompositeScore
		}
		return ranked[i].Start < ranked[j].Start
	})

	timeline = make([]pipeline.Segment, len(merged))
	copy(timeline, merged)
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Start < timeline[j].Start
	})

	return ranked, timeline
}

// merge folds segments that overlap or sit within gapTolerance seconds of an
// already accepted segment. Segments are considered best-first, so the
// strongest candidate anchors each merged group.
func merge(segs []pipeline.Segment, gapTolerance float64) []pipeline.Segment {
	ordered := make([]pipeline.Segment, len(segs))
	copy(ordered, segs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CompositeScore > ordered[j].CompositeScore
	})

	var merged []pipeline.Segment
	for _, seg := range ordered {
		idx := -1
		for i := range merged {
			if withinGap(merged[i], seg, gapTolerance) {
				idx = i
				break
			}
		}
		if idx < 0 {
			merged = append(merged, seg)
			continue
		}
		merged[idx] = fold(merged[idx], seg)

		// The fold may have grown the span into another accepted segment;
		// coalesce until the result overlaps nothing else, so the output
		// stays pairwise non-overlapping.
		for {
			other := -1
			for j := range merged {
				if j != idx && withinGap(merged[idx], merged[j], gapTolerance) {
					other = j
					break
				}
			}
			if other < 0 {
				break
			}
			merged[idx] = fold(merged[idx], merged[other])
			merged = append(merged[:other], merged[other+1:]...)
			if other < idx {
				idx--
			}
		}
	}
	return merged
}

func withinGap(a, b pipeline.Segment, gapTolerance float64) bool {
	return b.Start <= a.End+gapTolerance && b.End >= a.Start-gapTolerance
}

// fold absorbs src into dst: the span is the union, summaries concatenate
// unless they restate each other, tags union, word counts add, and each score
// keeps its maximum.
func fold(dst, src pipeline.Segment) pipeline.Segment {
	if src.Start < dst.Start {
		dst.Start = src.Start
	}
	if src.End > dst.End {
		dst.End = src.End
	}
	if src.Summary != "" && !nearDuplicate(dst.Summary, src.Summary) {
		if dst.Summary == "" {
			dst.Summary = src.Summary
		} else {
			dst.Summary = dst.Summary + " " + src.Summary
		}
	}
	dst.Tags = unionTags(dst.Tags, src.Tags)
	dst.WordCount += src.WordCount
	if src.RelevanceScore > dst.RelevanceScore {
		dst.RelevanceScore = src.RelevanceScore
	}
	if src.EngagementScore > dst.EngagementScore {
		dst.EngagementScore = src.EngagementScore
	}
	dst.CompositeScore = Composite(dst.RelevanceScore, dst.EngagementScore)
	return dst
}

// extend widens segments below the minimum duration, favoring trailing
// context over leading, clamped to the file bounds.
func extend(seg pipeline.Segment, cfg config.SegmentationConfig, span float64) pipeline.Segment {
	if seg.Duration() >= cfg.MinDurationSec {
		return seg
	}
	seg.Start -= cfg.ExtendBeforeSec
	if seg.Start < 0 {
		seg.Start = 0
	}
	seg.End += cfg.ExtendAfterSec
	if span > 0 && seg.End > span {
		seg.End = span
	}
	return seg
}

func nearDuplicate(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return true
	}
	sh := simhash.NewSimhash()
	ha := sh.GetSimhash(sh.NewWordFeatureSet([]byte(strings.ToLower(a))))
	hb := sh.GetSimhash(sh.NewWordFeatureSet([]byte(strings.ToLower(b))))
	return bits.OnesCount64(ha^hb) <= nearDupDistance
}

func unionTags(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, t := range a {
		key := strings.ToLower(t)
		if !seen[key] {
			seen[key] = true
			out = append(out, t)
		}
	}
	for _, t := range b {
		key := strings.ToLower(t)
		if !seen[key] {
			seen[key] = true
			out = append(out, t)
		}
	}
	return out
}
