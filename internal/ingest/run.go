package ingest

import (
	"context"
	"os"
	"path/filepath"

	"github.com/temirov/ingest/internal/gitrepo"
	"github.com/temirov/ingest/internal/locate"
	"github.com/temirov/ingest/internal/output"
	"github.com/temirov/ingest/internal/tokenizer"
	"github.com/temirov/ingest/internal/types"
)

const (
	tokenizerWarningFormat = "Warning: token counting unavailable: %v"
	cleanupWarningFormat   = "Warning: failed to remove clone directory %s: %v"
)

// RepositoryService is everything Run needs from the git layer: existence
// probes and branch listings during resolution, clones during acquisition.
type RepositoryService interface {
	locate.RepositoryProber
	locate.BranchLister
	Clone(executionContext context.Context, cloneSpec gitrepo.CloneSpec) error
}

// Options carries the per-run tunables.
type Options struct {
	MaxFileSizeBytes      int64
	IncludePatterns       []string
	IgnorePatterns        []string
	Branch                string
	IsRemoteHint          bool
	IncludeNotebookOutput bool
	TokenModel            string
	KeepClone             bool
	Sink                  types.DiagnosticSink
}

// Result is one completed ingestion.
type Result struct {
	Locator *types.Locator
	Summary string
	Tree    string
	Content string
}

// Runner executes the full pipeline: resolve the source, clone it when
// remote, traverse the tree, and render the digest.
type Runner struct {
	Repository RepositoryService
}

// NewRunner returns a Runner backed by the given repository service.
func NewRunner(repositoryService RepositoryService) *Runner {
	return &Runner{Repository: repositoryService}
}

// Run ingests source and returns its digest. Remote clones are removed when
// the run finishes unless KeepClone is set; the caller then owns the clone
// directory.
func (runner *Runner) Run(executionContext context.Context, source string, options Options) (*Result, error) {
	diagnosticSink := options.Sink
	if diagnosticSink == nil {
		diagnosticSink = types.NopSink{}
	}

	locator, resolveError := locate.Resolve(executionContext, source, locate.Options{
		MaxFileSizeBytes: options.MaxFileSizeBytes,
		IsRemoteHint:     options.IsRemoteHint,
		IncludePatterns:  options.IncludePatterns,
		IgnorePatterns:   options.IgnorePatterns,
		Prober:           runner.Repository,
		Lister:           runner.Repository,
		Sink:             diagnosticSink,
	})
	if resolveError != nil {
		return nil, resolveError
	}

	if locator.IsRemote() {
		if options.Branch != "" {
			locator.Branch = options.Branch
			locator.Commit = ""
		}
		cloneSpec := gitrepo.CloneSpec{
			URL:       locator.CanonicalURL,
			LocalPath: locator.LocalRootPath,
			Branch:    locator.Branch,
			Commit:    locator.Commit,
			Subpath:   locator.Subpath,
			Blob:      locator.RefKind == types.RefKindBlob,
		}
		if cloneError := runner.Repository.Clone(executionContext, cloneSpec); cloneError != nil {
			return nil, cloneError
		}
		if !options.KeepClone {
			defer removeCloneDirectory(locator, diagnosticSink)
		}
	}

	statistics := &types.TraversalStatistics{}
	rootNode, traverseError := Traverse(locator, statistics, diagnosticSink)
	if traverseError != nil {
		return nil, traverseError
	}

	tokenCounter, counterError := tokenizer.NewCounter(options.TokenModel)
	if counterError != nil {
		diagnosticSink.Warnf(tokenizerWarningFormat, counterError)
		tokenCounter = nil
	}

	renderer := &output.Renderer{
		TokenCounter:          tokenCounter,
		IncludeNotebookOutput: options.IncludeNotebookOutput,
		Sink:                  diagnosticSink,
	}
	digest := renderer.Render(rootNode, locator)

	return &Result{
		Locator: locator,
		Summary: digest.Summary,
		Tree:    digest.Tree,
		Content: digest.Content,
	}, nil
}

// removeCloneDirectory deletes the per-request directory that holds the
// clone, not just the working tree inside it.
func removeCloneDirectory(locator *types.Locator, diagnosticSink types.DiagnosticSink) {
	requestDirectory := filepath.Dir(locator.LocalRootPath)
	if removeError := os.RemoveAll(requestDirectory); removeError != nil {
		diagnosticSink.Warnf(cleanupWarningFormat, requestDirectory, removeError)
	}
}
