package analysis

import (
	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/model"
	"hackathon-ai-jury/internal/domain/ports/adapter"
)

// Registry maps every job type to its procedure. Construction is
// explicit and exhaustive: an unknown type can only ever surface as
// ErrUnknownJobType, never fall through to some default pass.
type Registry struct {
	procedures map[model.JobType]Procedure
}

func NewRegistry(fetcher adapter.RepoFetcher, ai adapter.AIServiceAdapter, aiModel string) *Registry {
	return &Registry{procedures: map[model.JobType]Procedure{
		model.JobTypeCodeQuality: CodeQuality(fetcher, ai, aiModel),
		model.JobTypeCoherence:   Coherence(fetcher, ai, aiModel),
		model.JobTypeInnovation:  Innovation(fetcher, ai, aiModel),
		model.JobTypeTechDetect:  TechDetect(fetcher, ai, aiModel),
	}}
}

func (r *Registry) Get(t model.JobType) (Procedure, error) {
	p, ok := r.procedures[t]
	if !ok {
		return nil, domain.ErrUnknownJobType
	}
	return p, nil
}
