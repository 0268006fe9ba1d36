// Package types defines every cross-package data structure used by the ingest pipeline.
package types

// NodeKind identifies what a traversed filesystem entry is.
type NodeKind string

const (
	NodeKindFile      NodeKind = "file"
	NodeKindDirectory NodeKind = "directory"
	NodeKindSymlink   NodeKind = "symlink"

	RefKindBlob = "blob"
	RefKindTree = "tree"
)

// Locator is the fully resolved description of one ingestion target. Exactly one
// of Branch or Commit is set for remote targets that pin a ref; local targets
// leave CanonicalURL empty.
type Locator struct {
	Owner          string
	RepositoryName string
	CanonicalURL   string
	Slug           string
	RequestID      string
	LocalRootPath  string

	RefKind string
	Branch  string
	Commit  string
	Subpath string

	MaxFileSizeBytes int64
	IncludePatterns  []string
	IgnorePatterns   []string
}

// IsRemote reports whether the locator points at a hosted repository rather
// than a local path.
func (locator *Locator) IsRemote() bool {
	return locator.CanonicalURL != ""
}

// FileSystemNode is one entry in the traversed tree. Directory nodes aggregate
// the sizes and counts of everything below them; symlink nodes are leaves and
// are never followed.
type FileSystemNode struct {
	Name           string
	Kind           NodeKind
	AbsolutePath   string
	RelativePath   string
	SizeBytes      int64
	FileCount      int
	DirectoryCount int
	Depth          int
	Children       []*FileSystemNode
}

// TraversalStatistics tracks running totals across one traversal so ceilings
// can be enforced globally rather than per directory.
type TraversalStatistics struct {
	TotalFiles     int
	TotalSizeBytes int64
}

// DiagnosticSink receives recoverable events that should reach the user
// without aborting the run.
type DiagnosticSink interface {
	Warnf(messageFormat string, messageArguments ...any)
}

// NopSink discards every diagnostic.
type NopSink struct{}

// Warnf implements DiagnosticSink.
func (NopSink) Warnf(string, ...any) {}
