// Package locate resolves ingestion sources, either local directory paths or
// remote repository URLs, into fully populated locators. Remote resolution
// understands full URLs, scheme-less host paths, and bare owner/repo slugs
// whose host is discovered by probing the known git hosts in order.
package locate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/temirov/ingest/internal/config"
	"github.com/temirov/ingest/internal/patterns"
	"github.com/temirov/ingest/internal/types"
	"github.com/temirov/ingest/internal/utils"
)

// RepositoryProber checks whether a remote repository exists and is publicly
// reachable.
type RepositoryProber interface {
	RepositoryExists(executionContext context.Context, repositoryURL string) (bool, error)
}

// BranchLister enumerates the branch names advertised by a remote repository.
type BranchLister interface {
	ListRemoteBranches(executionContext context.Context, repositoryURL string) ([]string, error)
}

var (
	// ErrInvalidRepositoryURL signals a source whose path holds fewer than an
	// owner and a repository segment.
	ErrInvalidRepositoryURL = errors.New("invalid repository URL")
	// ErrInvalidScheme signals a URL scheme other than http or https.
	ErrInvalidScheme = errors.New("invalid URL scheme")
	// ErrUnknownHost signals a domain outside the known git hosts.
	ErrUnknownHost = errors.New("unknown domain")
	// ErrNoHostResolved signals that no known git host serves the slug.
	ErrNoHostResolved = errors.New("could not find a valid repository host")
)

const (
	schemeHTTPS = "https"
	schemeHTTP  = "http"
	httpsPrefix = "https://"

	markerIssues      = "issues"
	markerPullRequest = "pull"

	commitHashLength  = 40
	hexadecimalDigits = "0123456789abcdefABCDEF"

	rootSubpath    = "/"
	currentDirPath = "."

	branchListWarningFormat = "Warning: Failed to fetch branch list: %v"
)

// Options carries the tunables and collaborators for a resolution run.
type Options struct {
	MaxFileSizeBytes int64
	IsRemoteHint     bool
	IncludePatterns  []string
	IgnorePatterns   []string
	Prober           RepositoryProber
	Lister           BranchLister
	Sink             types.DiagnosticSink
}

// Resolve parses source into a locator. A source is treated as remote when
// the caller says so, when it carries an http or https scheme, or when it
// mentions a known git host; everything else resolves as a local path. The
// returned locator carries the merged ignore patterns: the built-in defaults
// plus the caller's excludes, minus any pattern the includes name literally.
func Resolve(executionContext context.Context, source string, options Options) (*types.Locator, error) {
	diagnosticSink := options.Sink
	if diagnosticSink == nil {
		diagnosticSink = types.NopSink{}
	}

	var (
		locator      *types.Locator
		resolveError error
	)
	if isRemoteSource(source, options.IsRemoteHint) {
		locator, resolveError = resolveRemoteSource(executionContext, source, options, diagnosticSink)
	} else {
		locator, resolveError = resolveLocalPath(source)
	}
	if resolveError != nil {
		return nil, resolveError
	}

	ignorePatterns := config.DefaultIgnorePatterns()
	if len(options.IgnorePatterns) > 0 {
		parsedIgnore, parseError := patterns.Parse(options.IgnorePatterns...)
		if parseError != nil {
			return nil, parseError
		}
		ignorePatterns = append(ignorePatterns, parsedIgnore...)
	}
	if len(options.IncludePatterns) > 0 {
		parsedInclude, parseError := patterns.Parse(options.IncludePatterns...)
		if parseError != nil {
			return nil, parseError
		}
		locator.IncludePatterns = parsedInclude
		ignorePatterns = patterns.RemoveLiteral(ignorePatterns, parsedInclude)
	}
	locator.IgnorePatterns = utils.DeduplicatePatterns(ignorePatterns)

	locator.MaxFileSizeBytes = options.MaxFileSizeBytes
	if locator.MaxFileSizeBytes <= 0 {
		locator.MaxFileSizeBytes = config.DefaultMaxFileSizeBytes
	}

	return locator, nil
}

func isRemoteSource(source string, isRemoteHint bool) bool {
	if isRemoteHint {
		return true
	}
	if parsedURL, parseError := url.Parse(source); parseError == nil {
		if parsedURL.Scheme == schemeHTTPS || parsedURL.Scheme == schemeHTTP {
			return true
		}
	}
	for _, knownHost := range config.KnownGitHosts {
		if strings.Contains(source, knownHost) {
			return true
		}
	}
	return false
}

func resolveLocalPath(source string) (*types.Locator, error) {
	absolutePath, absoluteError := filepath.Abs(source)
	if absoluteError != nil {
		return nil, fmt.Errorf("resolve path %q: %w", source, absoluteError)
	}

	slug := strings.Trim(source, "/")
	if source == currentDirPath {
		slug = filepath.Base(absolutePath)
	}

	return &types.Locator{
		Slug:          slug,
		RequestID:     uuid.NewString(),
		LocalRootPath: absolutePath,
		Subpath:       rootSubpath,
	}, nil
}

func resolveRemoteSource(executionContext context.Context, source string, options Options, diagnosticSink types.DiagnosticSink) (*types.Locator, error) {
	if decodedSource, unescapeError := url.PathUnescape(source); unescapeError == nil {
		source = decodedSource
	}

	parsedURL, parseError := url.Parse(source)
	if parseError != nil {
		return nil, fmt.Errorf("%w %q", ErrInvalidRepositoryURL, source)
	}

	if parsedURL.Scheme != "" {
		if parsedURL.Scheme != schemeHTTPS && parsedURL.Scheme != schemeHTTP {
			return nil, fmt.Errorf("%w %q", ErrInvalidScheme, parsedURL.Scheme)
		}
		if hostError := validateHost(strings.ToLower(parsedURL.Host)); hostError != nil {
			return nil, hostError
		}
	} else {
		firstSegment := strings.ToLower(strings.SplitN(source, "/", 2)[0])
		if strings.Contains(firstSegment, ".") {
			if hostError := validateHost(firstSegment); hostError != nil {
				return nil, hostError
			}
		} else {
			// Bare owner/repo slug: probe the known hosts for one that serves it.
			ownerName, repositoryName, pathError := ownerAndRepositoryFromPath(source)
			if pathError != nil {
				return nil, pathError
			}
			resolvedHost, probeError := probeKnownHosts(executionContext, options.Prober, ownerName, repositoryName)
			if probeError != nil {
				return nil, probeError
			}
			source = resolvedHost + "/" + source
		}

		source = httpsPrefix + source
		parsedURL, parseError = url.Parse(source)
		if parseError != nil {
			return nil, fmt.Errorf("%w %q", ErrInvalidRepositoryURL, source)
		}
	}

	hostName := strings.ToLower(parsedURL.Host)
	ownerName, repositoryName, pathError := ownerAndRepositoryFromPath(parsedURL.Path)
	if pathError != nil {
		return nil, pathError
	}

	requestID := uuid.NewString()
	slug := ownerName + "-" + repositoryName
	locator := &types.Locator{
		Owner:          ownerName,
		RepositoryName: repositoryName,
		CanonicalURL:   httpsPrefix + hostName + "/" + ownerName + "/" + repositoryName,
		Slug:           slug,
		RequestID:      requestID,
		LocalRootPath:  filepath.Join(config.TempBasePath(), requestID, slug),
		Subpath:        rootSubpath,
	}

	remainingParts := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")[2:]
	if len(remainingParts) == 0 {
		return locator, nil
	}

	refMarker := remainingParts[0]
	remainingParts = remainingParts[1:]
	if len(remainingParts) == 0 {
		return locator, nil
	}
	if refMarker == markerIssues || refMarker == markerPullRequest {
		return locator, nil
	}
	locator.RefKind = refMarker

	if isValidCommitHash(remainingParts[0]) {
		locator.Commit = remainingParts[0]
		remainingParts = remainingParts[1:]
	} else {
		branchName, consumedParts := resolveBranch(executionContext, options.Lister, locator.CanonicalURL, remainingParts, diagnosticSink)
		locator.Branch = branchName
		remainingParts = remainingParts[consumedParts:]
	}

	if len(remainingParts) > 0 {
		locator.Subpath += strings.Join(remainingParts, "/")
	}

	return locator, nil
}

// resolveBranch matches a growing prefix of remainingParts against the remote
// branch list so branch names containing slashes resolve correctly. When the
// list cannot be fetched, the first part is assumed to be the branch. Returns
// the branch name and how many parts it consumed; no match consumes every
// part and leaves the branch empty.
func resolveBranch(executionContext context.Context, branchLister BranchLister, repositoryURL string, remainingParts []string, diagnosticSink types.DiagnosticSink) (string, int) {
	if branchLister == nil {
		return remainingParts[0], 1
	}

	branchNames, listError := branchLister.ListRemoteBranches(executionContext, repositoryURL)
	if listError != nil {
		diagnosticSink.Warnf(branchListWarningFormat, listError)
		return remainingParts[0], 1
	}

	for partIndex := range remainingParts {
		candidateBranch := strings.Join(remainingParts[:partIndex+1], "/")
		if utils.ContainsString(branchNames, candidateBranch) {
			return candidateBranch, partIndex + 1
		}
	}

	return "", len(remainingParts)
}

func probeKnownHosts(executionContext context.Context, repositoryProber RepositoryProber, ownerName string, repositoryName string) (string, error) {
	if repositoryProber != nil {
		for _, knownHost := range config.KnownGitHosts {
			candidateURL := httpsPrefix + knownHost + "/" + ownerName + "/" + repositoryName
			repositoryExists, probeError := repositoryProber.RepositoryExists(executionContext, candidateURL)
			if probeError != nil {
				return "", probeError
			}
			if repositoryExists {
				return knownHost, nil
			}
		}
	}
	return "", fmt.Errorf("%w for %q", ErrNoHostResolved, ownerName+"/"+repositoryName)
}

func ownerAndRepositoryFromPath(sourcePath string) (string, string, error) {
	pathParts := strings.Split(strings.Trim(strings.ToLower(sourcePath), "/"), "/")
	if len(pathParts) < 2 || pathParts[0] == "" || pathParts[1] == "" {
		return "", "", fmt.Errorf("%w %q", ErrInvalidRepositoryURL, sourcePath)
	}
	return pathParts[0], pathParts[1], nil
}

func validateHost(hostName string) error {
	if !utils.ContainsString(config.KnownGitHosts, hostName) {
		return fmt.Errorf("%w %q in URL", ErrUnknownHost, hostName)
	}
	return nil
}

func isValidCommitHash(candidate string) bool {
	if len(candidate) != commitHashLength {
		return false
	}
	for _, candidateRune := range candidate {
		if !strings.ContainsRune(hexadecimalDigits, candidateRune) {
			return false
		}
	}
	return true
}
