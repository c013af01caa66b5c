package analysis

import (
	"context"
	"encoding/json"

	"hackathon-ai-jury/internal/domain/ports/adapter"
)

// CodeQualityResult is the structured payload a completed code-quality
// job carries.
type CodeQualityResult struct {
	Score    float64  `json:"score"` // 0..10
	Findings []string `json:"findings"`
	Summary  string   `json:"summary"`
}

const codeQualitySystem = `You are a strict hackathon code reviewer.
Given a repository summary, score overall code quality from 0 to 10 and
list concrete findings. Reply with JSON only:
{"score": <number>, "findings": ["..."], "summary": "..."}`

// CodeQuality scans a candidate repository and scores its code quality.
func CodeQuality(fetcher adapter.RepoFetcher, ai adapter.AIServiceAdapter, model string) Procedure {
	return func(ctx context.Context, subject Subject, report ReportFunc) (json.RawMessage, error) {
		report(5, "fetching repository", nil)
		snap, err := fetcher.Fetch(ctx, subject.RepoURL)
		if err != nil {
			return nil, err
		}

		report(40, "reviewing code structure", nil)
		var res CodeQualityResult
		if err := askJSON(ctx, ai, model, codeQualitySystem, snapshotSummary(snap), &res); err != nil {
			return nil, err
		}
		res.Score = clampScore(res.Score)

		report(90, "finalizing review", nil)
		return json.Marshal(res)
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
