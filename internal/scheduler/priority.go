package scheduler

import (
	"math"

	"github.com/priority-crawler/prowl/internal/config"
)

// LinkPriority computes the scheduling priority of a discovered link.
// Additive terms: the base weight of the target's URL-pattern class,
// a capped fraction of the discovering page's content score, a
// penalty per level of the discovering page's depth, and a penalty
// when the edge is nofollow or robots-disallowed. The result is not
// clamped; negative priorities simply sort last.
func LinkPriority(cfg *config.CrawlConfig, target string, parentScore float64, parentDepth int, nofollow, disallowed bool) float64 {
	priority := cfg.BaseWeight(target)

	parent := parentScore * cfg.ParentScoreFraction
	if parent > cfg.ParentScoreCap {
		parent = cfg.ParentScoreCap
	}
	priority += parent

	priority -= float64(parentDepth) * cfg.DepthPenalty

	if nofollow || disallowed {
		priority -= cfg.NoFollowPenalty
	}

	return priority
}

// PageScore rates a fetched page's content value. It feeds forward
// into the priority of links discovered on the page. Each term is
// capped, so the score tops out at 30.
func PageScore(title, metaDescription string, wordCount int) float64 {
	score := 0.0
	score += math.Min(float64(len(title)), 100) / 10
	score += math.Min(float64(len(metaDescription)), 200) / 20
	score += math.Min(float64(wordCount), 1000) / 100
	return score
}
