package analysis

import (
	"context"
	"encoding/json"

	"hackathon-ai-jury/internal/domain/ports/adapter"
)

// CoherenceResult scores how well the implementation matches the
// project's stated goal.
type CoherenceResult struct {
	Score   float64 `json:"score"` // 0..10
	Summary string  `json:"summary"`
}

const coherenceSystem = `You judge whether a hackathon project's code
matches what the project claims to do. Given a repository summary, score
coherence between description and implementation from 0 to 10.
Reply with JSON only: {"score": <number>, "summary": "..."}`

// Coherence checks description/implementation alignment for a candidate.
func Coherence(fetcher adapter.RepoFetcher, ai adapter.AIServiceAdapter, model string) Procedure {
	return func(ctx context.Context, subject Subject, report ReportFunc) (json.RawMessage, error) {
		report(5, "fetching repository", nil)
		snap, err := fetcher.Fetch(ctx, subject.RepoURL)
		if err != nil {
			return nil, err
		}

		report(50, "comparing claims against implementation", nil)
		var res CoherenceResult
		if err := askJSON(ctx, ai, model, coherenceSystem, snapshotSummary(snap), &res); err != nil {
			return nil, err
		}
		res.Score = clampScore(res.Score)

		report(90, "finalizing coherence pass", nil)
		return json.Marshal(res)
	}
}
