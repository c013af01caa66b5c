package adapter

import "context"

// RepoSnapshot is the slice of a candidate repository the analysis
// procedures look at: metadata, language breakdown and a sample of the
// file tree. Fetching the repository itself is an external concern.
type RepoSnapshot struct {
	FullName      string         `json:"full_name"`
	Description   string         `json:"description"`
	DefaultBranch string         `json:"default_branch"`
	Languages     map[string]int `json:"languages"` // language -> bytes
	Files         []string       `json:"files"`
	ReadmeExcerpt string         `json:"readme_excerpt"`
	CommitCount   int            `json:"commit_count"`
}

// RepoFetcher retrieves a snapshot of a candidate's repository.
type RepoFetcher interface {
	Fetch(ctx context.Context, repoURL string) (*RepoSnapshot, error)
}
