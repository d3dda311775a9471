package pipeline

import (
	"fmt"
	"time"
)

// Stage names for the stock analysis pipeline
const (
	StageSequenceAnalysis = "sequence_analysis"
	StageStructureLookup  = "structure_lookup"
	StageLiteratureSearch = "literature_search"
	StageCandidateLookup  = "candidate_lookup"
	StageReportSynthesis  = "report_synthesis"
)

// DefaultDescriptors returns the stock five-stage analysis pipeline.
// Sequence analysis feeds structure lookup; literature and candidate
// lookup run in parallel once both are done; report synthesis joins
// everything. Only sequence analysis and the final report are required.
func DefaultDescriptors() []StageDescriptor {
	return []StageDescriptor{
		{
			Name:          StageSequenceAnalysis,
			Required:      true,
			Fallback:      FallbackNone,
			CacheCategory: StageSequenceAnalysis,
			Timeout:       5 * time.Minute,
		},
		{
			Name:          StageStructureLookup,
			DependsOn:     []string{StageSequenceAnalysis},
			Fallback:      FallbackPartial,
			CacheCategory: StageStructureLookup,
			Timeout:       3 * time.Minute,
		},
		{
			Name:          StageLiteratureSearch,
			DependsOn:     []string{StageSequenceAnalysis, StageStructureLookup},
			Fallback:      FallbackPlaceholder,
			CacheCategory: StageLiteratureSearch,
			Timeout:       2 * time.Minute,
			Retry:         RetryPolicy{MaxRetries: 2, BaseDelay: 2 * time.Second, Jitter: true},
		},
		{
			Name:          StageCandidateLookup,
			DependsOn:     []string{StageSequenceAnalysis, StageStructureLookup},
			Fallback:      FallbackEmpty,
			CacheCategory: StageCandidateLookup,
			Timeout:       2 * time.Minute,
			Retry:         RetryPolicy{MaxRetries: 2, BaseDelay: 2 * time.Second, Jitter: true},
		},
		{
			Name:     StageReportSynthesis,
			DependsOn: []string{
				StageSequenceAnalysis,
				StageStructureLookup,
				StageLiteratureSearch,
				StageCandidateLookup,
			},
			Required: true,
			Fallback: FallbackPartial,
			Timeout:  3 * time.Minute,
		},
	}
}

// DefaultPipeline wires the stock descriptors to the given executors,
// keyed by stage name. Every stage must have an executor.
func DefaultPipeline(executors map[string]StageExecutor) (*Pipeline, error) {
	p := NewPipeline()
	for _, desc := range DefaultDescriptors() {
		exec, ok := executors[desc.Name]
		if !ok {
			return nil, fmt.Errorf("no executor for stage %s", desc.Name)
		}
		if err := p.Register(desc, exec); err != nil {
			return nil, err
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
