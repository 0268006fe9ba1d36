// Package gitrepo acquires remote repositories for ingestion. It probes
// repository existence over HTTP, lists remote branches through git, and
// materializes shallow clones narrowed to the requested ref and subpath.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrRepositoryNotFound signals a probe that answered negatively.
	ErrRepositoryNotFound = errors.New("repository not found, make sure it is public")
	// ErrOperationTimedOut signals that the per-operation ceiling expired.
	ErrOperationTimedOut = errors.New("operation timed out")
	// ErrGitNotInstalled signals a missing or broken git executable.
	ErrGitNotInstalled = errors.New("git is not installed or not accessible, please install git first")
)

const (
	operationTimeout = 60 * time.Second
	branchCacheSize  = 128

	gitExecutableName     = "git"
	gitVersionArgument    = "--version"
	gitWorkTreeFlag       = "-C"
	cloneSubcommand       = "clone"
	singleBranchFlag      = "--single-branch"
	blobFilterFlag        = "--filter=blob:none"
	sparseFlag            = "--sparse"
	shallowDepthFlag      = "--depth=1"
	branchFlag            = "--branch"
	lsRemoteSubcommand    = "ls-remote"
	headsFlag             = "--heads"
	sparseCheckoutCommand = "sparse-checkout"
	sparseCheckoutSet     = "set"
	checkoutSubcommand    = "checkout"

	defaultBranchMain   = "main"
	defaultBranchMaster = "master"
	remoteHeadsPrefix   = "refs/heads/"
	rootSubpath         = "/"
)

// CloneSpec describes one clone request: where to fetch from, where to place
// the working tree, and how far to narrow it.
type CloneSpec struct {
	URL       string
	LocalPath string
	Branch    string
	Commit    string
	Subpath   string
	Blob      bool
}

// Client talks to remote git hosts. It is safe for concurrent use; branch
// listings are cached per repository URL so repeated resolutions of the same
// repository skip the network.
type Client struct {
	httpClient  *http.Client
	branchCache *lru.Cache[string, []string]
}

// NewClient returns a Client with redirect-following disabled so redirect
// status codes stay observable during existence probes.
func NewClient() *Client {
	branchCache, _ := lru.New[string, []string](branchCacheSize) // only fails for non-positive sizes
	return &Client{
		httpClient: &http.Client{
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		branchCache: branchCache,
	}
}

// RepositoryExists probes repositoryURL with a HEAD request. A 200 or 301
// answer means the repository is public; 302 and 404 mean it is not.
// Network failures read as absent, matching how private repositories refuse
// anonymous probes.
func (client *Client) RepositoryExists(executionContext context.Context, repositoryURL string) (bool, error) {
	timeoutContext, cancelTimeout := context.WithTimeout(executionContext, operationTimeout)
	defer cancelTimeout()

	headRequest, requestError := http.NewRequestWithContext(timeoutContext, http.MethodHead, repositoryURL, nil)
	if requestError != nil {
		return false, fmt.Errorf("build existence probe for %s: %w", repositoryURL, requestError)
	}

	headResponse, responseError := client.httpClient.Do(headRequest)
	if responseError != nil {
		if errors.Is(responseError, context.DeadlineExceeded) {
			return false, timeoutError()
		}
		return false, nil
	}
	defer headResponse.Body.Close()

	switch headResponse.StatusCode {
	case http.StatusOK, http.StatusMovedPermanently:
		return true, nil
	case http.StatusFound, http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("unexpected status %d probing %s", headResponse.StatusCode, repositoryURL)
}

// ListRemoteBranches returns the branch names advertised by repositoryURL.
func (client *Client) ListRemoteBranches(executionContext context.Context, repositoryURL string) ([]string, error) {
	if cachedBranches, cacheHit := client.branchCache.Get(repositoryURL); cacheHit {
		return cachedBranches, nil
	}

	timeoutContext, cancelTimeout := context.WithTimeout(executionContext, operationTimeout)
	defer cancelTimeout()

	if installError := ensureGitInstalled(timeoutContext); installError != nil {
		return nil, installError
	}

	listingOutput, listError := runGitCommand(timeoutContext, lsRemoteSubcommand, headsFlag, repositoryURL)
	if listError != nil {
		return nil, listError
	}

	branchNames := parseBranchListing(listingOutput)
	client.branchCache.Add(repositoryURL, branchNames)
	return branchNames, nil
}

// Clone materializes the repository described by cloneSpec. The clone is
// single-branch and shallow unless a commit is pinned; a subpath narrows it
// to a sparse checkout of that directory.
func (client *Client) Clone(executionContext context.Context, cloneSpec CloneSpec) error {
	timeoutContext, cancelTimeout := context.WithTimeout(executionContext, operationTimeout)
	defer cancelTimeout()

	parentDirectory := filepath.Dir(cloneSpec.LocalPath)
	if makeDirectoryError := os.MkdirAll(parentDirectory, 0o755); makeDirectoryError != nil {
		return fmt.Errorf("create parent directory %s: %w", parentDirectory, makeDirectoryError)
	}

	repositoryExists, probeError := client.RepositoryExists(timeoutContext, cloneSpec.URL)
	if probeError != nil {
		return probeError
	}
	if !repositoryExists {
		return ErrRepositoryNotFound
	}

	if installError := ensureGitInstalled(timeoutContext); installError != nil {
		return installError
	}

	if _, cloneError := runGitCommand(timeoutContext, buildCloneArguments(cloneSpec)...); cloneError != nil {
		return cloneError
	}

	if isPartialClone(cloneSpec) {
		sparseArguments := []string{gitWorkTreeFlag, cloneSpec.LocalPath, sparseCheckoutCommand, sparseCheckoutSet, sparseCheckoutPath(cloneSpec)}
		if _, sparseError := runGitCommand(timeoutContext, sparseArguments...); sparseError != nil {
			return sparseError
		}
	}

	if cloneSpec.Commit != "" {
		checkoutArguments := []string{gitWorkTreeFlag, cloneSpec.LocalPath, checkoutSubcommand, cloneSpec.Commit}
		if _, checkoutError := runGitCommand(timeoutContext, checkoutArguments...); checkoutError != nil {
			return checkoutError
		}
	}

	return nil
}

func buildCloneArguments(cloneSpec CloneSpec) []string {
	cloneArguments := []string{cloneSubcommand, singleBranchFlag}
	if isPartialClone(cloneSpec) {
		cloneArguments = append(cloneArguments, blobFilterFlag, sparseFlag)
	}
	if cloneSpec.Commit == "" {
		cloneArguments = append(cloneArguments, shallowDepthFlag)
		if cloneSpec.Branch != "" && !isDefaultBranch(cloneSpec.Branch) {
			cloneArguments = append(cloneArguments, branchFlag, cloneSpec.Branch)
		}
	}
	return append(cloneArguments, cloneSpec.URL, cloneSpec.LocalPath)
}

func isPartialClone(cloneSpec CloneSpec) bool {
	return cloneSpec.Subpath != "" && cloneSpec.Subpath != rootSubpath
}

// sparseCheckoutPath returns the directory handed to sparse-checkout. A blob
// subpath names a file, so its parent directory is checked out instead.
func sparseCheckoutPath(cloneSpec CloneSpec) string {
	sparsePath := strings.TrimLeft(cloneSpec.Subpath, "/")
	if cloneSpec.Blob {
		sparsePath = path.Dir(sparsePath)
	}
	return sparsePath
}

func isDefaultBranch(branchName string) bool {
	loweredBranch := strings.ToLower(branchName)
	return loweredBranch == defaultBranchMain || loweredBranch == defaultBranchMaster
}

func parseBranchListing(listingOutput string) []string {
	var branchNames []string
	for _, outputLine := range strings.Split(listingOutput, "\n") {
		if strings.TrimSpace(outputLine) == "" {
			continue
		}
		markerIndex := strings.Index(outputLine, remoteHeadsPrefix)
		if markerIndex < 0 {
			continue
		}
		branchNames = append(branchNames, outputLine[markerIndex+len(remoteHeadsPrefix):])
	}
	return branchNames
}

func ensureGitInstalled(executionContext context.Context) error {
	if _, versionError := runGitCommand(executionContext, gitVersionArgument); versionError != nil {
		return fmt.Errorf("%w: %v", ErrGitNotInstalled, versionError)
	}
	return nil
}

func runGitCommand(executionContext context.Context, commandArguments ...string) (string, error) {
	gitCommand := exec.CommandContext(executionContext, gitExecutableName, commandArguments...)
	var standardOutput, standardError bytes.Buffer
	gitCommand.Stdout = &standardOutput
	gitCommand.Stderr = &standardError

	if runError := gitCommand.Run(); runError != nil {
		if contextError := executionContext.Err(); contextError != nil {
			if errors.Is(contextError, context.DeadlineExceeded) {
				return "", timeoutError()
			}
			return "", contextError
		}
		return "", fmt.Errorf("command failed: git %s: %s", strings.Join(commandArguments, " "), strings.TrimSpace(standardError.String()))
	}

	return standardOutput.String(), nil
}

func timeoutError() error {
	return fmt.Errorf("%w after %d seconds", ErrOperationTimedOut, int(operationTimeout.Seconds()))
}
