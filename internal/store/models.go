// Package store persists resources, chunks, index jobs and research jobs in
// a single SQLite database and exposes the chunk nearest-neighbour search
// used by the vector subtrack of hybrid search.
package store

import "time"

// ResourceScope distinguishes resources bound to a single project from
// resources visible across an owner's entire workspace.
type ResourceScope string

const (
	ScopeProject ResourceScope = "project"
	ScopeGlobal  ResourceScope = "global"
)

// ResourceKind is the materialization strategy for a resource.
type ResourceKind string

const (
	KindGit   ResourceKind = "git"
	KindLocal ResourceKind = "local"
)

// ContentStatus tracks the Repository Materializer / sync side of a resource.
type ContentStatus string

const (
	ContentMissing ContentStatus = "missing"
	ContentSyncing ContentStatus = "syncing"
	ContentReady   ContentStatus = "ready"
	ContentFailed  ContentStatus = "failed"
)

// VectorStatus tracks the embedding/index side of a resource.
type VectorStatus string

const (
	VectorMissing  VectorStatus = "missing"
	VectorIndexing VectorStatus = "indexing"
	VectorReady    VectorStatus = "ready"
	VectorFailed   VectorStatus = "failed"
)

// LegacyStatus is the derived (contentStatus, vectorStatus) -> single-enum
// view kept for callers that predate the split status model.
type LegacyStatus string

const (
	LegacyPending  LegacyStatus = "pending"
	LegacyIndexing LegacyStatus = "indexing"
	LegacyReady    LegacyStatus = "ready"
	LegacyFailed   LegacyStatus = "failed"
)

// DeriveLegacyStatus maps the two-sided status model onto the single legacy enum.
func DeriveLegacyStatus(content ContentStatus, vector VectorStatus) LegacyStatus {
	switch {
	case content == ContentFailed || vector == VectorFailed:
		return LegacyFailed
	case content == ContentReady && vector == VectorReady:
		return LegacyReady
	case content == ContentSyncing || vector == VectorIndexing:
		return LegacyIndexing
	default:
		return LegacyPending
	}
}

// Resource is the indexed unit: a git repository or a local directory.
type Resource struct {
	ID          string
	OwnerID     *string
	Name        string
	Scope       ResourceScope
	ProjectKey  string
	Kind        ResourceKind
	RemoteURL   *string
	LocalPath   *string
	Branch      *string
	Commit      *string
	ScopedPaths []string
	Notes       *string

	ContentStatus  ContentStatus
	VectorStatus   VectorStatus
	ContentError   *string
	VectorError    *string
	ChunkCount     int

	LastSyncedAt     *time.Time
	LastIndexedAt    *time.Time
	LastLocalCommit  *string
	LastRemoteCommit *string
	UpdateAvailable  bool
	LastUpdateCheckAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LegacyStatus derives the single-enum status for this resource.
func (r *Resource) LegacyStatus() LegacyStatus {
	return DeriveLegacyStatus(r.ContentStatus, r.VectorStatus)
}

// Chunk is a line-ranged slice of a resource's file, optionally embedded.
type Chunk struct {
	ID                string
	ResourceID        string
	Filepath          string
	LineStart         int
	LineEnd           int
	Text              string
	ContextualizedText string
	Scope             map[string]string
	Entities          []string
	Language          string
	Hash              string
	Embedding         []float32 // nil when embedding failed for this chunk
}

// IndexJobKind distinguishes the two pipeline job types.
type IndexJobKind string

const (
	JobSync  IndexJobKind = "sync"
	JobIndex IndexJobKind = "index"
)

// IndexJobStatus is the job lifecycle state.
type IndexJobStatus string

const (
	JobQueued    IndexJobStatus = "queued"
	JobRunning   IndexJobStatus = "running"
	JobCompleted IndexJobStatus = "completed"
	JobFailed    IndexJobStatus = "failed"
)

// WarningStage names the pipeline stage a per-file warning was recorded at.
type WarningStage string

const (
	StageScan        WarningStage = "scan"
	StageRead        WarningStage = "read"
	StageChunk       WarningStage = "chunk"
	StageEmbed       WarningStage = "embed"
	StageSync        WarningStage = "sync"
	StageRemoteCheck WarningStage = "remote-check"
)

// Warning is a single non-fatal problem recorded against an IndexJob.
type Warning struct {
	Filepath string       `json:"filepath"`
	Stage    WarningStage `json:"stage"`
	Message  string       `json:"message"`
}

// IndexJob is one sync or index run owned by a Resource.
type IndexJob struct {
	ID             string
	ResourceID     string
	Kind           IndexJobKind
	Status         IndexJobStatus
	Progress       int
	Error          *string
	Warnings       []Warning
	TotalFiles     int
	ProcessedFiles int
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
}

// ResearchJobStatus mirrors IndexJobStatus but is tracked independently.
type ResearchJobStatus string

const (
	ResearchQueued    ResearchJobStatus = "queued"
	ResearchRunning   ResearchJobStatus = "running"
	ResearchCompleted ResearchJobStatus = "completed"
	ResearchFailed    ResearchJobStatus = "failed"
)

// ResearchOptions captures the agent-mode knobs used for a research run.
type ResearchOptions struct {
	Mode  string  `json:"mode"`
	Alpha float64 `json:"alpha"`
	TopK  int     `json:"topK"`
}

// ResearchJob is an asynchronous deep-research run and its eventual outcome.
type ResearchJob struct {
	ID          string
	OwnerID     *string
	Query       string
	ResourceIDs []string
	Options     ResearchOptions
	Status      ResearchJobStatus
	Result      *string // JSON-encoded final agent result, set when completed
	Error       *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
