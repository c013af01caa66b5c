package analysis

import (
	"context"
	"encoding/json"

	"hackathon-ai-jury/internal/domain/ports/adapter"
)

// InnovationResult scores novelty of approach and problem choice.
type InnovationResult struct {
	Score   float64 `json:"score"` // 0..10
	Summary string  `json:"summary"`
}

const innovationSystem = `You assess hackathon projects for innovation.
Given a repository summary, score novelty of the problem and approach
from 0 to 10. Reply with JSON only: {"score": <number>, "summary": "..."}`

// Innovation scores a candidate's novelty.
func Innovation(fetcher adapter.RepoFetcher, ai adapter.AIServiceAdapter, model string) Procedure {
	return func(ctx context.Context, subject Subject, report ReportFunc) (json.RawMessage, error) {
		report(5, "fetching repository", nil)
		snap, err := fetcher.Fetch(ctx, subject.RepoURL)
		if err != nil {
			return nil, err
		}

		report(50, "assessing novelty", nil)
		var res InnovationResult
		if err := askJSON(ctx, ai, model, innovationSystem, snapshotSummary(snap), &res); err != nil {
			return nil, err
		}
		res.Score = clampScore(res.Score)

		report(90, "finalizing innovation pass", nil)
		return json.Marshal(res)
	}
}
