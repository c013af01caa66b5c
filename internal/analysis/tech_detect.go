package analysis

import (
	"context"
	"encoding/json"

	"hackathon-ai-jury/internal/domain/ports/adapter"
)

// TechDetectResult reports the detected stack and whether the project
// meets the hackathon's technology eligibility requirement.
type TechDetectResult struct {
	Eligible     bool     `json:"eligible"`
	Technologies []string `json:"technologies"`
	Summary      string   `json:"summary"`
}

const techDetectSystem = `You detect the technology stack of a hackathon
project from its repository summary and decide whether it genuinely uses
the required platform rather than mentioning it superficially.
Reply with JSON only:
{"eligible": <bool>, "technologies": ["..."], "summary": "..."}`

// TechDetect identifies a candidate's stack and eligibility.
func TechDetect(fetcher adapter.RepoFetcher, ai adapter.AIServiceAdapter, model string) Procedure {
	return func(ctx context.Context, subject Subject, report ReportFunc) (json.RawMessage, error) {
		report(5, "fetching repository", nil)
		snap, err := fetcher.Fetch(ctx, subject.RepoURL)
		if err != nil {
			return nil, err
		}

		report(50, "detecting technology stack", nil)
		var res TechDetectResult
		if err := askJSON(ctx, ai, model, techDetectSystem, snapshotSummary(snap), &res); err != nil {
			return nil, err
		}

		report(90, "finalizing detection", nil)
		return json.Marshal(res)
	}
}
