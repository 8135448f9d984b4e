package dedupe

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/latticehq/lattice/internal/core/common"
	"github.com/latticehq/lattice/internal/core/model"
	"github.com/latticehq/lattice/internal/llm"
	"github.com/latticehq/lattice/internal/logger"
)

const (
	defaultThreshold = 0.85
	defaultMaxScan   = 500

	// Pairs scoring inside this band below the threshold are forwarded to
	// the model for a second opinion when LLM judgment is enabled.
	llmReviewBand = 0.15
	// Upper bound on pairs sent in one judgment call.
	maxLLMPairs = 50

	embedWorkers = 4
)

// Detector computes duplicate groups over a user's entity set. It is
// stateless; every call rescans the provided working set. Embedder and LLM
// are optional, the heuristic methods always run.
type Detector struct {
	Embedder llm.EmbedderClient
	LLM      llm.LLMClient
	UseLLM   bool
	MaxScan  int
	Log      *logger.Logger
}

func NewDetector(embedder llm.EmbedderClient, llmClient llm.LLMClient, useLLM bool, maxScan int, log *logger.Logger) *Detector {
	if maxScan <= 0 {
		maxScan = defaultMaxScan
	}
	return &Detector{
		Embedder: embedder,
		LLM:      llmClient,
		UseLLM:   useLLM,
		MaxScan:  maxScan,
		Log:      log,
	}
}

// FindDuplicateGroups scores every unordered same-type pair in the working
// set and clusters the matches. A pair matches when any single method reaches
// threshold. The caller is expected to pass entities ordered by mention count
// descending; the scan cap is applied here again regardless.
func (d *Detector) FindDuplicateGroups(ctx context.Context, entities []model.Entity, threshold float64) ([]model.DuplicateGroup, error) {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultThreshold
	}
	if len(entities) > d.MaxScan {
		d.Log.Warn("duplicate scan capped", "entities", len(entities), "cap", d.MaxScan)
		entities = entities[:d.MaxScan]
	}
	if len(entities) < 2 {
		return nil, nil
	}

	embeddings := d.embedAll(ctx, entities)

	var (
		pairs     []matchedPair
		uncertain []matchedPair
	)
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			if entities[i].EntityType != entities[j].EntityType {
				continue
			}
			score := scorePair(&entities[i], &entities[j], embeddings[i], embeddings[j])
			switch {
			case score.Score >= threshold:
				pairs = append(pairs, matchedPair{A: i, B: j, Score: score})
			case d.UseLLM && d.LLM != nil && score.Score >= threshold-llmReviewBand:
				uncertain = append(uncertain, matchedPair{A: i, B: j, Score: score})
			}
		}
	}

	if len(uncertain) > 0 {
		pairs = append(pairs, d.judgePairs(ctx, entities, uncertain, threshold)...)
	}

	return clusterMatches(entities, pairs), nil
}

// embedAll fetches one embedding per entity display value with bounded
// concurrency. Failures disable the embedding method for that entity only.
func (d *Detector) embedAll(ctx context.Context, entities []model.Entity) [][]float32 {
	vecs := make([][]float32, len(entities))
	if d.Embedder == nil {
		return vecs
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)
	for i := range entities {
		g.Go(func() error {
			vec, err := d.Embedder.Embed(gctx, entities[i].DisplayValue)
			if err != nil {
				d.Log.Warn("embedding fetch failed", "entity", entities[i].DisplayValue, "error", err)
				return nil
			}
			vecs[i] = vec
			return nil
		})
	}
	_ = g.Wait()
	return vecs
}

type llmJudgment struct {
	Duplicates []struct {
		Pair       int     `json:"pair"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	} `json:"duplicates"`
}

// judgePairs sends borderline pairs to the model in one batched call. The
// model's confidence is treated as just another method score, so only pairs
// it rates at or above the threshold come back as matches. Any failure logs
// and returns nothing; heuristic matches already collected are unaffected.
func (d *Detector) judgePairs(ctx context.Context, entities []model.Entity, uncertain []matchedPair, threshold float64) []matchedPair {
	if len(uncertain) > maxLLMPairs {
		d.Log.Warn("llm judgment capped", "pairs", len(uncertain), "cap", maxLLMPairs)
		uncertain = uncertain[:maxLLMPairs]
	}

	var sb strings.Builder
	for n, p := range uncertain {
		a, b := entities[p.A], entities[p.B]
		fmt.Fprintf(&sb, "%d. %q (%s, mentioned %d times) vs %q (%s, mentioned %d times)\n",
			n+1, a.DisplayValue, a.EntityType, a.MentionCount,
			b.DisplayValue, b.EntityType, b.MentionCount)
	}

	prompt := fmt.Sprintf(`
<CANDIDATE PAIRS>
%s</CANDIDATE PAIRS>

Instructions:
Each numbered pair lists two entity records extracted from meeting transcripts.
Decide which pairs refer to the same real-world thing (for example a nickname
and a full name, or an abbreviation and its expansion). Distinct people or
things with similar names are not duplicates.
Return a JSON object with key "duplicates": a list of objects, each with
"pair" (the pair number), "confidence" (float between 0 and 1), and "reason"
(one short sentence). Only include pairs you judge to be the same thing.

Example JSON:
{
  "duplicates": [
    {"pair": 1, "confidence": 0.9, "reason": "Dan is a short form of Daniel"}
  ]
}
`, sb.String())

	response, err := d.LLM.Generate(ctx, prompt)
	if err != nil {
		d.Log.Warn("llm duplicate judgment failed", "error", err)
		return nil
	}

	result, err := common.ParseJSON[llmJudgment](response)
	if err != nil {
		d.Log.Warn("llm duplicate judgment unparseable", "error", err)
		return nil
	}

	var confirmed []matchedPair
	for _, dup := range result.Duplicates {
		if dup.Pair < 1 || dup.Pair > len(uncertain) {
			continue
		}
		if dup.Confidence < threshold {
			continue
		}
		p := uncertain[dup.Pair-1]
		reason := dup.Reason
		if reason == "" {
			reason = "judged to be the same thing"
		}
		confidence := dup.Confidence
		if confidence > 1 {
			confidence = 1
		}
		confirmed = append(confirmed, matchedPair{
			A: p.A,
			B: p.B,
			Score: pairScore{
				Score:  confidence,
				Method: MethodLLM,
				Reason: reason,
			},
		})
	}
	return confirmed
}
