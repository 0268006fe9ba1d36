package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/temirov/ingest/internal/gitrepo"
)

type stubRepositoryService struct {
	branches     []string
	cloneError   error
	clonePayload map[string]string
	cloneSpecs   []gitrepo.CloneSpec
}

func (service *stubRepositoryService) RepositoryExists(context.Context, string) (bool, error) {
	return true, nil
}

func (service *stubRepositoryService) ListRemoteBranches(context.Context, string) ([]string, error) {
	return service.branches, nil
}

func (service *stubRepositoryService) Clone(_ context.Context, cloneSpec gitrepo.CloneSpec) error {
	service.cloneSpecs = append(service.cloneSpecs, cloneSpec)
	if service.cloneError != nil {
		return service.cloneError
	}
	for relativeName, contents := range service.clonePayload {
		absolutePath := filepath.Join(cloneSpec.LocalPath, filepath.FromSlash(relativeName))
		if directoryError := os.MkdirAll(filepath.Dir(absolutePath), 0o755); directoryError != nil {
			return directoryError
		}
		if writeError := os.WriteFile(absolutePath, []byte(contents), 0o644); writeError != nil {
			return writeError
		}
	}
	return nil
}

func TestRunLocalDirectory(testingInstance *testing.T) {
	rootDirectory := testingInstance.TempDir()
	writeTreeFile(testingInstance, rootDirectory, "main.go", "package main\n")

	repositoryService := &stubRepositoryService{}
	runner := NewRunner(repositoryService)
	result, runError := runner.Run(context.Background(), rootDirectory, Options{})
	if runError != nil {
		testingInstance.Fatalf("Run failed: %v", runError)
	}

	expectedSlugLine := "Directory: " + strings.Trim(rootDirectory, "/")
	if !strings.Contains(result.Summary, expectedSlugLine) {
		testingInstance.Errorf("summary %q is missing %q", result.Summary, expectedSlugLine)
	}
	if !strings.Contains(result.Tree, "main.go") {
		testingInstance.Errorf("tree %q is missing main.go", result.Tree)
	}
	if !strings.Contains(result.Content, "package main") {
		testingInstance.Errorf("content is missing the file body: %q", result.Content)
	}
	if len(repositoryService.cloneSpecs) != 0 {
		testingInstance.Errorf("local ingestion cloned: %+v", repositoryService.cloneSpecs)
	}
}

func TestRunDirectoryFixtureDigest(testingInstance *testing.T) {
	rootDirectory := testingInstance.TempDir()
	relativePaths := []string{
		"README.md",
		"main.go",
		"util.go",
		"docs/guide.md",
		"docs/api.md",
		"src/app.go",
		"src/lib/helper.go",
		"src/lib/helper_test.go",
	}
	for _, relativePath := range relativePaths {
		writeTreeFile(testingInstance, rootDirectory, relativePath, "contents of "+relativePath+"\n")
	}

	runner := NewRunner(&stubRepositoryService{})
	result, runError := runner.Run(context.Background(), rootDirectory, Options{})
	if runError != nil {
		testingInstance.Fatalf("Run failed: %v", runError)
	}

	if !strings.Contains(result.Summary, "Files analyzed: 8") {
		testingInstance.Errorf("summary %q is missing the file total", result.Summary)
	}
	for _, relativePath := range relativePaths {
		contentHeader := "FILE: " + relativePath
		if occurrences := strings.Count(result.Content, contentHeader); occurrences != 1 {
			testingInstance.Errorf("expected exactly one %q block, got %d", contentHeader, occurrences)
		}
	}
}

func TestRunRemoteDigestAndCleanup(testingInstance *testing.T) {
	repositoryService := &stubRepositoryService{
		clonePayload: map[string]string{
			"README.md": "# hello\n",
			"app.log":   "discarded\n",
		},
	}
	runner := NewRunner(repositoryService)
	result, runError := runner.Run(context.Background(), "https://github.com/octo/project", Options{})
	if runError != nil {
		testingInstance.Fatalf("Run failed: %v", runError)
	}

	if !strings.Contains(result.Summary, "Repository: octo/project") {
		testingInstance.Errorf("summary %q is missing the repository line", result.Summary)
	}
	if !strings.Contains(result.Content, "# hello") {
		testingInstance.Errorf("content is missing the readme body: %q", result.Content)
	}
	if strings.Contains(result.Content, "discarded") {
		testingInstance.Errorf("content includes a default-ignored file: %q", result.Content)
	}

	if len(repositoryService.cloneSpecs) != 1 {
		testingInstance.Fatalf("cloneSpecs = %+v, want one clone", repositoryService.cloneSpecs)
	}
	cloneSpec := repositoryService.cloneSpecs[0]
	if cloneSpec.URL != "https://github.com/octo/project" {
		testingInstance.Errorf("clone URL = %q", cloneSpec.URL)
	}
	if cloneSpec.LocalPath != result.Locator.LocalRootPath {
		testingInstance.Errorf("clone path = %q, locator path = %q", cloneSpec.LocalPath, result.Locator.LocalRootPath)
	}

	requestDirectory := filepath.Dir(result.Locator.LocalRootPath)
	if _, statError := os.Stat(requestDirectory); !os.IsNotExist(statError) {
		testingInstance.Errorf("request directory %s was not removed: %v", requestDirectory, statError)
	}
}

func TestRunKeepCloneRetainsDirectory(testingInstance *testing.T) {
	repositoryService := &stubRepositoryService{
		clonePayload: map[string]string{"README.md": "# hello\n"},
	}
	runner := NewRunner(repositoryService)
	result, runError := runner.Run(context.Background(), "https://github.com/octo/project", Options{KeepClone: true})
	if runError != nil {
		testingInstance.Fatalf("Run failed: %v", runError)
	}

	requestDirectory := filepath.Dir(result.Locator.LocalRootPath)
	testingInstance.Cleanup(func() { os.RemoveAll(requestDirectory) })
	if _, statError := os.Stat(result.Locator.LocalRootPath); statError != nil {
		testingInstance.Errorf("clone directory missing: %v", statError)
	}
}

func TestRunBranchOverrideClearsCommit(testingInstance *testing.T) {
	commitHash := strings.Repeat("a1b2c3d4e5", 4)
	repositoryService := &stubRepositoryService{
		clonePayload: map[string]string{"README.md": "# hello\n"},
	}
	runner := NewRunner(repositoryService)
	_, runError := runner.Run(context.Background(), "https://github.com/octo/project/tree/"+commitHash, Options{Branch: "release"})
	if runError != nil {
		testingInstance.Fatalf("Run failed: %v", runError)
	}

	if len(repositoryService.cloneSpecs) != 1 {
		testingInstance.Fatalf("cloneSpecs = %+v, want one clone", repositoryService.cloneSpecs)
	}
	cloneSpec := repositoryService.cloneSpecs[0]
	if cloneSpec.Branch != "release" || cloneSpec.Commit != "" {
		testingInstance.Errorf("clone spec = branch %q commit %q, want the override branch and no commit", cloneSpec.Branch, cloneSpec.Commit)
	}
}

func TestRunCloneFailurePropagates(testingInstance *testing.T) {
	repositoryService := &stubRepositoryService{cloneError: gitrepo.ErrRepositoryNotFound}
	runner := NewRunner(repositoryService)
	_, runError := runner.Run(context.Background(), "https://github.com/octo/project", Options{})
	if !errors.Is(runError, gitrepo.ErrRepositoryNotFound) {
		testingInstance.Fatalf("error = %v, want ErrRepositoryNotFound", runError)
	}
}
