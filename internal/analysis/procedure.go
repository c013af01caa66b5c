package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hackathon-ai-jury/internal/domain/ports/adapter"
)

// Subject is the payload an analysis job carries: which project to
// analyze and where its code lives.
type Subject struct {
	SubjectID string `json:"subject_id"`
	Name      string `json:"name"`
	RepoURL   string `json:"repo_url"`
}

// ReportFunc lets a running procedure surface progress. Each call is
// persisted to the job row and published to live observers.
type ReportFunc func(percent int, stage string, detail json.RawMessage)

// Procedure is one named analysis pass. Implementations wrap transient
// external-service failures with domain.Transient; anything else is
// treated as fatal by the worker.
type Procedure func(ctx context.Context, subject Subject, report ReportFunc) (json.RawMessage, error)

// maxPromptTokens caps a single analysis prompt. Repo summaries with
// large READMEs or file lists are trimmed to fit before the call.
const maxPromptTokens = 8000

// askJSON sends a system+user prompt pair and decodes the model's JSON
// reply into out. Models occasionally wrap JSON in prose or fences, so
// the first balanced object is extracted before decoding.
func askJSON(ctx context.Context, ai adapter.AIServiceAdapter, model, system, user string, out any) error {
	user = fitPromptBudget(ctx, ai, model, system, user)
	reply, err := ai.Chat(ctx, model, []adapter.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		return err
	}
	raw := extractJSON(reply)
	if raw == "" {
		return fmt.Errorf("model reply contained no JSON object: %.120s", reply)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}

// fitPromptBudget cuts the tail of the user prompt until the message
// pair fits maxPromptTokens. The repo summary puts its most important
// lines first, so tail truncation loses the least. A counting failure
// leaves the prompt untouched; the provider enforces its own limit.
func fitPromptBudget(ctx context.Context, ai adapter.AIServiceAdapter, model, system, user string) string {
	msgs := func(u string) []adapter.Message {
		return []adapter.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: u},
		}
	}
	n, err := ai.CountTokens(ctx, model, msgs(user))
	if err != nil {
		return user
	}
	for i := 0; i < 5 && n > maxPromptTokens && len(user) > 0; i++ {
		keep := len(user) * maxPromptTokens / n
		if keep >= len(user) {
			keep = len(user) / 2
		}
		user = user[:keep]
		if n, err = ai.CountTokens(ctx, model, msgs(user)); err != nil {
			break
		}
	}
	return user
}

func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func snapshotSummary(snap *adapter.RepoSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", snap.FullName)
	if snap.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", snap.Description)
	}
	if len(snap.Languages) > 0 {
		b.WriteString("Languages:")
		for lang, bytes := range snap.Languages {
			fmt.Fprintf(&b, " %s(%d)", lang, bytes)
		}
		b.WriteString("\n")
	}
	if len(snap.Files) > 0 {
		fmt.Fprintf(&b, "Files (%d sampled):\n", len(snap.Files))
		for _, f := range snap.Files {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	}
	if snap.ReadmeExcerpt != "" {
		fmt.Fprintf(&b, "README excerpt:\n%s\n", snap.ReadmeExcerpt)
	}
	return b.String()
}
