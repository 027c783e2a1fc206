package agent

import (
	"context"
	"encoding/json"

	"github.com/ctxpack/ctxpack/internal/observability"
	"github.com/ctxpack/ctxpack/internal/store"
)

// researchResult is the JSON shape persisted on a completed research job.
type researchResult struct {
	Model   string   `json:"model"`
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
	Steps   int      `json:"steps"`
}

// RunResearchJob invokes deep research in the background and writes the
// status and final result back to the owning row. Never retried by the
// caller on failure, per the research job contract.
func (d *Driver) RunResearchJob(ctx context.Context, st *store.Store, jobID string, logger *observability.Logger) {
	job, err := st.GetResearchJob(ctx, jobID)
	if err != nil {
		if logger != nil {
			logger.ErrorContext(ctx, "agent: load research job failed", "jobId", jobID, "error", err)
		}
		return
	}
	if err := st.StartResearchJob(ctx, jobID); err != nil {
		if logger != nil {
			logger.ErrorContext(ctx, "agent: start research job failed", "jobId", jobID, "error", err)
		}
		return
	}

	result, err := d.DeepResearch(ctx, job.Query, job.ResourceIDs)
	if err != nil {
		if failErr := st.FailResearchJob(ctx, jobID, err.Error()); failErr != nil && logger != nil {
			logger.ErrorContext(ctx, "agent: persist research job failure failed", "jobId", jobID, "error", failErr)
		}
		return
	}

	payload, err := json.Marshal(researchResult{Model: result.Model, Text: result.Text, Sources: result.Sources, Steps: len(result.Steps)})
	if err != nil {
		if failErr := st.FailResearchJob(ctx, jobID, err.Error()); failErr != nil && logger != nil {
			logger.ErrorContext(ctx, "agent: persist research job marshal failure failed", "jobId", jobID, "error", failErr)
		}
		return
	}
	if err := st.CompleteResearchJob(ctx, jobID, string(payload)); err != nil && logger != nil {
		logger.ErrorContext(ctx, "agent: complete research job failed", "jobId", jobID, "error", err)
	}
}
