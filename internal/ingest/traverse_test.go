package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/temirov/ingest/internal/config"
	"github.com/temirov/ingest/internal/types"
)

type recordingSink struct {
	messages []string
}

func (sink *recordingSink) Warnf(messageFormat string, messageArguments ...any) {
	sink.messages = append(sink.messages, fmt.Sprintf(messageFormat, messageArguments...))
}

func (sink *recordingSink) contains(fragment string) bool {
	for _, message := range sink.messages {
		if strings.Contains(message, fragment) {
			return true
		}
	}
	return false
}

func writeTreeFile(testingInstance *testing.T, rootDirectory string, relativeName string, contents string) {
	testingInstance.Helper()
	absolutePath := filepath.Join(rootDirectory, filepath.FromSlash(relativeName))
	if directoryError := os.MkdirAll(filepath.Dir(absolutePath), 0o755); directoryError != nil {
		testingInstance.Fatalf("MkdirAll(%q) failed: %v", filepath.Dir(absolutePath), directoryError)
	}
	if writeError := os.WriteFile(absolutePath, []byte(contents), 0o644); writeError != nil {
		testingInstance.Fatalf("WriteFile(%q) failed: %v", absolutePath, writeError)
	}
}

func directoryLocator(rootDirectory string) *types.Locator {
	return &types.Locator{
		Slug:             filepath.Base(rootDirectory),
		LocalRootPath:    rootDirectory,
		Subpath:          "/",
		MaxFileSizeBytes: config.DefaultMaxFileSizeBytes,
	}
}

func childNames(node *types.FileSystemNode) []string {
	names := make([]string, 0, len(node.Children))
	for _, childNode := range node.Children {
		names = append(names, childNode.Name)
	}
	return names
}

func assertChildNames(testingInstance *testing.T, node *types.FileSystemNode, expectedNames []string) {
	testingInstance.Helper()
	actualNames := childNames(node)
	if len(actualNames) != len(expectedNames) {
		testingInstance.Fatalf("children = %v, want %v", actualNames, expectedNames)
	}
	for nameIndex := range expectedNames {
		if actualNames[nameIndex] != expectedNames[nameIndex] {
			testingInstance.Fatalf("children = %v, want %v", actualNames, expectedNames)
		}
	}
}

func TestTraverseBuildsSortedTree(testingInstance *testing.T) {
	rootDirectory := testingInstance.TempDir()
	writeTreeFile(testingInstance, rootDirectory, "b.txt", "bb")
	writeTreeFile(testingInstance, rootDirectory, "a.txt", "a")
	writeTreeFile(testingInstance, rootDirectory, ".env", "SECRET=1")
	writeTreeFile(testingInstance, rootDirectory, "README.md", "# readme")
	writeTreeFile(testingInstance, rootDirectory, "src/x.go", "package x")
	writeTreeFile(testingInstance, rootDirectory, ".github/y.yml", "on: push")

	locator := directoryLocator(rootDirectory)
	statistics := &types.TraversalStatistics{}
	rootNode, traverseError := Traverse(locator, statistics, nil)
	if traverseError != nil {
		testingInstance.Fatalf("Traverse failed: %v", traverseError)
	}

	assertChildNames(testingInstance, rootNode, []string{"README.md", "a.txt", "b.txt", ".env", "src", ".github"})

	if rootNode.FileCount != 6 {
		testingInstance.Errorf("FileCount = %d, want 6", rootNode.FileCount)
	}
	if rootNode.DirectoryCount != 2 {
		testingInstance.Errorf("DirectoryCount = %d, want 2", rootNode.DirectoryCount)
	}
	if statistics.TotalFiles != 6 {
		testingInstance.Errorf("TotalFiles = %d, want 6", statistics.TotalFiles)
	}

	var sourceDirectory *types.FileSystemNode
	for _, childNode := range rootNode.Children {
		if childNode.Name == "src" {
			sourceDirectory = childNode
		}
	}
	if sourceDirectory == nil || len(sourceDirectory.Children) != 1 {
		testingInstance.Fatalf("src directory missing or empty: %+v", sourceDirectory)
	}
	if sourceDirectory.Children[0].RelativePath != "src/x.go" {
		testingInstance.Errorf("RelativePath = %q, want %q", sourceDirectory.Children[0].RelativePath, "src/x.go")
	}
}

func TestTraverseHonorsIgnorePatterns(testingInstance *testing.T) {
	rootDirectory := testingInstance.TempDir()
	writeTreeFile(testingInstance, rootDirectory, "keep.txt", "keep")
	writeTreeFile(testingInstance, rootDirectory, "app.log", "log")
	writeTreeFile(testingInstance, rootDirectory, "node_modules/dep.js", "module.exports = 1")

	locator := directoryLocator(rootDirectory)
	locator.IgnorePatterns = []string{"*.log", "node_modules"}
	statistics := &types.TraversalStatistics{}
	rootNode, traverseError := Traverse(locator, statistics, nil)
	if traverseError != nil {
		testingInstance.Fatalf("Traverse failed: %v", traverseError)
	}

	assertChildNames(testingInstance, rootNode, []string{"keep.txt"})
	if statistics.TotalFiles != 1 {
		testingInstance.Errorf("TotalFiles = %d, want 1", statistics.TotalFiles)
	}
}

func TestTraverseHonorsIncludePatterns(testingInstance *testing.T) {
	testCases := []struct {
		name            string
		includePatterns []string
		expectedTopset  []string
	}{
		{
			name:            "file glob selects matching top level files",
			includePatterns: []string{"*.txt"},
			expectedTopset:  []string{"a.txt"},
		},
		{
			name:            "directory pattern selects the directory and its files",
			includePatterns: []string{"src/*"},
			expectedTopset:  []string{"src"},
		},
	}

	for _, testCase := range testCases {
		testingInstance.Run(testCase.name, func(testingInstance *testing.T) {
			rootDirectory := testingInstance.TempDir()
			writeTreeFile(testingInstance, rootDirectory, "a.txt", "a")
			writeTreeFile(testingInstance, rootDirectory, "b.md", "b")
			writeTreeFile(testingInstance, rootDirectory, "src/c.txt", "c")

			locator := directoryLocator(rootDirectory)
			locator.IncludePatterns = testCase.includePatterns
			rootNode, traverseError := Traverse(locator, &types.TraversalStatistics{}, nil)
			if traverseError != nil {
				testingInstance.Fatalf("Traverse failed: %v", traverseError)
			}

			assertChildNames(testingInstance, rootNode, testCase.expectedTopset)
		})
	}
}

func TestTraverseIncludedDirectoryRetainsContents(testingInstance *testing.T) {
	rootDirectory := testingInstance.TempDir()
	writeTreeFile(testingInstance, rootDirectory, "a.txt", "a")
	writeTreeFile(testingInstance, rootDirectory, "src/c.txt", "c")
	writeTreeFile(testingInstance, rootDirectory, "src/d.md", "d")

	locator := directoryLocator(rootDirectory)
	locator.IncludePatterns = []string{"src/*"}
	rootNode, traverseError := Traverse(locator, &types.TraversalStatistics{}, nil)
	if traverseError != nil {
		testingInstance.Fatalf("Traverse failed: %v", traverseError)
	}

	if len(rootNode.Children) != 1 || rootNode.Children[0].Name != "src" {
		testingInstance.Fatalf("top level children = %v, want [src]", childNames(rootNode))
	}
	assertChildNames(testingInstance, rootNode.Children[0], []string{"c.txt", "d.md"})
}

func TestTraverseReadsRepositoryConfig(testingInstance *testing.T) {
	rootDirectory := testingInstance.TempDir()
	writeTreeFile(testingInstance, rootDirectory, "keep.txt", "keep")
	writeTreeFile(testingInstance, rootDirectory, "hide.secret", "hide")
	writeTreeFile(testingInstance, rootDirectory, config.RepositoryConfigFileName, "[config]\nignore_patterns = [\"*.secret\", \""+config.RepositoryConfigFileName+"\"]\n")

	locator := directoryLocator(rootDirectory)
	rootNode, traverseError := Traverse(locator, &types.TraversalStatistics{}, nil)
	if traverseError != nil {
		testingInstance.Fatalf("Traverse failed: %v", traverseError)
	}

	assertChildNames(testingInstance, rootNode, []string{"keep.txt"})
}

func TestTraverseSingleFileTargets(testingInstance *testing.T) {
	testingInstance.Run("blob subpath yields one file node", func(testingInstance *testing.T) {
		rootDirectory := testingInstance.TempDir()
		writeTreeFile(testingInstance, rootDirectory, "docs/guide.md", "guide text")

		locator := directoryLocator(rootDirectory)
		locator.RefKind = types.RefKindBlob
		locator.Subpath = "/docs/guide.md"
		fileNode, traverseError := Traverse(locator, &types.TraversalStatistics{}, nil)
		if traverseError != nil {
			testingInstance.Fatalf("Traverse failed: %v", traverseError)
		}

		if fileNode.Kind != types.NodeKindFile {
			testingInstance.Errorf("Kind = %q, want %q", fileNode.Kind, types.NodeKindFile)
		}
		if fileNode.RelativePath != "docs/guide.md" {
			testingInstance.Errorf("RelativePath = %q, want %q", fileNode.RelativePath, "docs/guide.md")
		}
		if fileNode.FileCount != 1 {
			testingInstance.Errorf("FileCount = %d, want 1", fileNode.FileCount)
		}
	})

	testingInstance.Run("file root is labeled by its name", func(testingInstance *testing.T) {
		rootDirectory := testingInstance.TempDir()
		writeTreeFile(testingInstance, rootDirectory, "script.py", "print(1)\n")

		locator := directoryLocator(filepath.Join(rootDirectory, "script.py"))
		fileNode, traverseError := Traverse(locator, &types.TraversalStatistics{}, nil)
		if traverseError != nil {
			testingInstance.Fatalf("Traverse failed: %v", traverseError)
		}

		if fileNode.RelativePath != "script.py" {
			testingInstance.Errorf("RelativePath = %q, want %q", fileNode.RelativePath, "script.py")
		}
	})

	testingInstance.Run("missing target", func(testingInstance *testing.T) {
		locator := directoryLocator(filepath.Join(testingInstance.TempDir(), "absent"))
		if _, traverseError := Traverse(locator, &types.TraversalStatistics{}, nil); !errors.Is(traverseError, ErrPathNotFound) {
			testingInstance.Fatalf("error = %v, want ErrPathNotFound", traverseError)
		}
	})

	testingInstance.Run("blob pointing at a directory", func(testingInstance *testing.T) {
		rootDirectory := testingInstance.TempDir()
		writeTreeFile(testingInstance, rootDirectory, "docs/guide.md", "guide")

		locator := directoryLocator(rootDirectory)
		locator.RefKind = types.RefKindBlob
		locator.Subpath = "/docs"
		if _, traverseError := Traverse(locator, &types.TraversalStatistics{}, nil); !errors.Is(traverseError, ErrNotAFile) {
			testingInstance.Fatalf("error = %v, want ErrNotAFile", traverseError)
		}
	})

	testingInstance.Run("empty file", func(testingInstance *testing.T) {
		rootDirectory := testingInstance.TempDir()
		writeTreeFile(testingInstance, rootDirectory, "empty.txt", "")

		locator := directoryLocator(rootDirectory)
		locator.RefKind = types.RefKindBlob
		locator.Subpath = "/empty.txt"
		if _, traverseError := Traverse(locator, &types.TraversalStatistics{}, nil); !errors.Is(traverseError, ErrEmptyFile) {
			testingInstance.Fatalf("error = %v, want ErrEmptyFile", traverseError)
		}
	})
}

func TestTraverseSymlinksAreLeaves(testingInstance *testing.T) {
	rootDirectory := testingInstance.TempDir()
	writeTreeFile(testingInstance, rootDirectory, "target.txt", "content")
	if symlinkError := os.Symlink("target.txt", filepath.Join(rootDirectory, "link")); symlinkError != nil {
		testingInstance.Skipf("symlinks unavailable: %v", symlinkError)
	}

	locator := directoryLocator(rootDirectory)
	statistics := &types.TraversalStatistics{}
	rootNode, traverseError := Traverse(locator, statistics, nil)
	if traverseError != nil {
		testingInstance.Fatalf("Traverse failed: %v", traverseError)
	}

	assertChildNames(testingInstance, rootNode, []string{"target.txt", "link"})
	if statistics.TotalFiles != 2 {
		testingInstance.Errorf("TotalFiles = %d, want 2", statistics.TotalFiles)
	}
	if rootNode.FileCount != 2 {
		testingInstance.Errorf("FileCount = %d, want 2", rootNode.FileCount)
	}

	linkNode := rootNode.Children[1]
	if linkNode.Kind != types.NodeKindSymlink {
		testingInstance.Errorf("Kind = %q, want %q", linkNode.Kind, types.NodeKindSymlink)
	}
	if len(linkNode.Children) != 0 || linkNode.SizeBytes != 0 {
		testingInstance.Errorf("symlink node is not a leaf: %+v", linkNode)
	}
}

func TestTraverseSkipsOversizedFiles(testingInstance *testing.T) {
	rootDirectory := testingInstance.TempDir()
	writeTreeFile(testingInstance, rootDirectory, "small.txt", "ok")
	writeTreeFile(testingInstance, rootDirectory, "big.txt", "0123456789")

	locator := directoryLocator(rootDirectory)
	locator.MaxFileSizeBytes = 4
	sink := &recordingSink{}
	statistics := &types.TraversalStatistics{}
	rootNode, traverseError := Traverse(locator, statistics, sink)
	if traverseError != nil {
		testingInstance.Fatalf("Traverse failed: %v", traverseError)
	}

	assertChildNames(testingInstance, rootNode, []string{"small.txt"})
	if statistics.TotalFiles != 1 {
		testingInstance.Errorf("TotalFiles = %d, want 1", statistics.TotalFiles)
	}
	if !sink.contains("exceeds maximum file size limit") {
		testingInstance.Errorf("missing size skip diagnostic: %v", sink.messages)
	}
}

func TestTraverseEnforcesGlobalCeilings(testingInstance *testing.T) {
	testingInstance.Run("file count ceiling stops the walk", func(testingInstance *testing.T) {
		rootDirectory := testingInstance.TempDir()
		writeTreeFile(testingInstance, rootDirectory, "unseen.txt", "x")

		locator := directoryLocator(rootDirectory)
		sink := &recordingSink{}
		statistics := &types.TraversalStatistics{TotalFiles: config.MaxFileCount}
		rootNode, traverseError := Traverse(locator, statistics, sink)
		if traverseError != nil {
			testingInstance.Fatalf("Traverse failed: %v", traverseError)
		}

		if len(rootNode.Children) != 0 {
			testingInstance.Errorf("children = %v, want none", childNames(rootNode))
		}
		if !sink.contains("Maximum file limit") {
			testingInstance.Errorf("missing file limit diagnostic: %v", sink.messages)
		}
	})

	testingInstance.Run("total size ceiling stops the walk", func(testingInstance *testing.T) {
		rootDirectory := testingInstance.TempDir()
		writeTreeFile(testingInstance, rootDirectory, "unseen.txt", "x")

		locator := directoryLocator(rootDirectory)
		sink := &recordingSink{}
		statistics := &types.TraversalStatistics{TotalSizeBytes: config.MaxTotalSizeBytes}
		rootNode, traverseError := Traverse(locator, statistics, sink)
		if traverseError != nil {
			testingInstance.Fatalf("Traverse failed: %v", traverseError)
		}

		if len(rootNode.Children) != 0 {
			testingInstance.Errorf("children = %v, want none", childNames(rootNode))
		}
		if !sink.contains("Maximum total size limit") {
			testingInstance.Errorf("missing total size diagnostic: %v", sink.messages)
		}
	})

	testingInstance.Run("file that would cross the total size ceiling is skipped", func(testingInstance *testing.T) {
		rootDirectory := testingInstance.TempDir()
		writeTreeFile(testingInstance, rootDirectory, "last.txt", "12345")

		locator := directoryLocator(rootDirectory)
		sink := &recordingSink{}
		statistics := &types.TraversalStatistics{TotalSizeBytes: config.MaxTotalSizeBytes - 1}
		rootNode, traverseError := Traverse(locator, statistics, sink)
		if traverseError != nil {
			testingInstance.Fatalf("Traverse failed: %v", traverseError)
		}

		if len(rootNode.Children) != 0 {
			testingInstance.Errorf("children = %v, want none", childNames(rootNode))
		}
		if !sink.contains("would exceed total size limit") {
			testingInstance.Errorf("missing size skip diagnostic: %v", sink.messages)
		}
	})
}

func TestTraverseDepthCeiling(testingInstance *testing.T) {
	rootDirectory := testingInstance.TempDir()
	nestedPath := "deep"
	for level := 1; level < config.MaxDirectoryDepth+1; level++ {
		nestedPath = filepath.Join(nestedPath, "deep")
	}
	writeTreeFile(testingInstance, rootDirectory, filepath.ToSlash(filepath.Join(nestedPath, "bottom.txt")), "unreachable")

	locator := directoryLocator(rootDirectory)
	sink := &recordingSink{}
	statistics := &types.TraversalStatistics{}
	rootNode, traverseError := Traverse(locator, statistics, sink)
	if traverseError != nil {
		testingInstance.Fatalf("Traverse failed: %v", traverseError)
	}

	if !sink.contains("Maximum depth limit") {
		testingInstance.Fatalf("missing depth limit diagnostic: %v", sink.messages)
	}
	if statistics.TotalFiles != 0 {
		testingInstance.Errorf("TotalFiles = %d, want 0", statistics.TotalFiles)
	}

	deepestNode := rootNode
	for len(deepestNode.Children) > 0 {
		deepestNode = deepestNode.Children[0]
	}
	if deepestNode.Kind != types.NodeKindDirectory || deepestNode.Depth != config.MaxDirectoryDepth+1 {
		testingInstance.Errorf("deepest node = kind %q depth %d, want empty directory at depth %d", deepestNode.Kind, deepestNode.Depth, config.MaxDirectoryDepth+1)
	}
}
