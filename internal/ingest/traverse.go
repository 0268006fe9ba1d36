package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/temirov/ingest/internal/config"
	"github.com/temirov/ingest/internal/patterns"
	"github.com/temirov/ingest/internal/types"
	"github.com/temirov/ingest/internal/utils"
)

var (
	// ErrPathNotFound signals that the traversal target does not exist.
	ErrPathNotFound = errors.New("path cannot be found")
	// ErrNotAFile signals a single-file request whose target is not a file.
	ErrNotAFile = errors.New("path is not a file")
	// ErrEmptyFile signals a single-file request whose target has no content.
	ErrEmptyFile = errors.New("file has no content")
)

const (
	depthLimitMessageFormat     = "Maximum depth limit (%d) reached"
	fileLimitMessageFormat      = "Maximum file limit (%d) reached"
	totalSizeLimitMessageFormat = "Maximum total size limit (%.1fMB) reached"
	fileSizeSkipMessageFormat   = "Skipping file %s: exceeds maximum file size limit (%s)"
	totalSizeSkipMessageFormat  = "Skipping file %s: would exceed total size limit"
	unknownEntryMessageFormat   = "Warning: %s is an unknown file type, skipping"
	listDirectoryMessageFormat  = "Warning: cannot list directory %s: %v"
	readEntryMessageFormat      = "Warning: cannot read entry %s: %v"

	readmeFileName       = "readme.md"
	hiddenNamePrefix     = "."
	currentDirectoryPath = "."
	includeDirectoryMark = "/"
)

// sort groups for directory children, lowest first
const (
	sortGroupReadme = iota
	sortGroupVisibleFile
	sortGroupHiddenFile
	sortGroupVisibleDirectory
	sortGroupHiddenDirectory
)

type traversalRun struct {
	locator        *types.Locator
	statistics     *types.TraversalStatistics
	sink           types.DiagnosticSink
	ignoreMatcher  *patterns.Matcher
	includeMatcher *patterns.Matcher
}

// Traverse walks the locator's target directory and assembles the node tree
// the renderer consumes. The target is the locator's root joined with its
// subpath; a repository config file at that target contributes extra ignore
// patterns before any entry is visited. Blob requests and file roots bypass
// the walk and produce a one-node tree. Resource ceilings stop descent
// without failing the run; all skips surface on the sink.
func Traverse(locator *types.Locator, statistics *types.TraversalStatistics, sink types.DiagnosticSink) (*types.FileSystemNode, error) {
	if sink == nil {
		sink = types.NopSink{}
	}

	targetPath := traversalTarget(locator)

	if repositoryPatterns := config.LoadRepositoryIgnorePatterns(targetPath, sink); len(repositoryPatterns) > 0 {
		locator.IgnorePatterns = utils.DeduplicatePatterns(append(locator.IgnorePatterns, repositoryPatterns...))
	}

	targetInfo, statError := os.Stat(targetPath)
	if statError != nil {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, locator.Slug)
	}

	if isSingleFileRequest(locator, targetInfo) {
		return singleFileNode(locator, targetPath, targetInfo)
	}

	ignoreMatcher, ignoreMatcherError := patterns.NewMatcher(locator.IgnorePatterns)
	if ignoreMatcherError != nil {
		return nil, ignoreMatcherError
	}
	var includeMatcher *patterns.Matcher
	if len(locator.IncludePatterns) > 0 {
		var includeMatcherError error
		includeMatcher, includeMatcherError = patterns.NewMatcher(locator.IncludePatterns)
		if includeMatcherError != nil {
			return nil, includeMatcherError
		}
	}

	rootNode := &types.FileSystemNode{
		Name:         targetInfo.Name(),
		Kind:         types.NodeKindDirectory,
		AbsolutePath: targetPath,
		RelativePath: utils.RelativePathOrSelf(targetPath, locator.LocalRootPath),
	}

	run := &traversalRun{
		locator:        locator,
		statistics:     statistics,
		sink:           sink,
		ignoreMatcher:  ignoreMatcher,
		includeMatcher: includeMatcher,
	}
	run.processDirectory(rootNode)

	return rootNode, nil
}

func traversalTarget(locator *types.Locator) string {
	subpathRelative := strings.Trim(locator.Subpath, "/")
	return filepath.Join(locator.LocalRootPath, filepath.FromSlash(subpathRelative))
}

func isSingleFileRequest(locator *types.Locator, targetInfo os.FileInfo) bool {
	if locator.RefKind == types.RefKindBlob {
		return true
	}
	if targetInfo.Mode().IsRegular() && locator.Subpath == "/" {
		return true
	}
	rootInfo, rootStatError := os.Stat(locator.LocalRootPath)
	return rootStatError == nil && rootInfo.Mode().IsRegular()
}

// singleFileNode builds the one-node tree for a file target. The relative
// path falls back to the file name when the target is the root itself, so a
// directly ingested file is labeled by its name rather than ".".
func singleFileNode(locator *types.Locator, targetPath string, targetInfo os.FileInfo) (*types.FileSystemNode, error) {
	if !targetInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, targetPath)
	}
	if targetInfo.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, targetInfo.Name())
	}

	relativePath := utils.RelativePathOrSelf(targetPath, locator.LocalRootPath)
	if relativePath == currentDirectoryPath {
		relativePath = targetInfo.Name()
	}

	return &types.FileSystemNode{
		Name:         targetInfo.Name(),
		Kind:         types.NodeKindFile,
		AbsolutePath: targetPath,
		RelativePath: relativePath,
		SizeBytes:    targetInfo.Size(),
		FileCount:    1,
	}, nil
}

func (run *traversalRun) processDirectory(directoryNode *types.FileSystemNode) {
	if run.limitExceeded(directoryNode.Depth) {
		return
	}

	directoryEntries, readError := os.ReadDir(directoryNode.AbsolutePath)
	if readError != nil {
		run.sink.Warnf(listDirectoryMessageFormat, directoryNode.AbsolutePath, readError)
		return
	}

	for _, directoryEntry := range directoryEntries {
		entryPath := filepath.Join(directoryNode.AbsolutePath, directoryEntry.Name())

		if run.shouldExclude(entryPath) {
			continue
		}
		if run.includeMatcher != nil && !run.shouldInclude(entryPath, directoryEntry.IsDir()) {
			continue
		}

		entryType := directoryEntry.Type()
		switch {
		case entryType&fs.ModeSymlink != 0:
			run.processSymlink(directoryEntry.Name(), entryPath, directoryNode)
		case entryType.IsRegular():
			run.processFile(directoryEntry, entryPath, directoryNode)
		case entryType.IsDir():
			childDirectoryNode := &types.FileSystemNode{
				Name:         directoryEntry.Name(),
				Kind:         types.NodeKindDirectory,
				AbsolutePath: entryPath,
				RelativePath: run.relativePath(entryPath),
				Depth:        directoryNode.Depth + 1,
			}
			run.processDirectory(childDirectoryNode)
			directoryNode.Children = append(directoryNode.Children, childDirectoryNode)
			directoryNode.SizeBytes += childDirectoryNode.SizeBytes
			directoryNode.FileCount += childDirectoryNode.FileCount
			directoryNode.DirectoryCount += 1 + childDirectoryNode.DirectoryCount
		default:
			run.sink.Warnf(unknownEntryMessageFormat, entryPath)
		}
	}

	sortChildren(directoryNode)
}

func (run *traversalRun) processSymlink(entryName string, entryPath string, parentNode *types.FileSystemNode) {
	symlinkNode := &types.FileSystemNode{
		Name:         entryName,
		Kind:         types.NodeKindSymlink,
		AbsolutePath: entryPath,
		RelativePath: run.relativePath(entryPath),
		Depth:        parentNode.Depth + 1,
	}
	run.statistics.TotalFiles++
	parentNode.Children = append(parentNode.Children, symlinkNode)
	parentNode.FileCount++
}

func (run *traversalRun) processFile(directoryEntry os.DirEntry, entryPath string, parentNode *types.FileSystemNode) {
	fileInformation, informationError := directoryEntry.Info()
	if informationError != nil {
		run.sink.Warnf(readEntryMessageFormat, entryPath, informationError)
		return
	}

	fileSize := fileInformation.Size()
	if fileSize > run.locator.MaxFileSizeBytes {
		run.sink.Warnf(fileSizeSkipMessageFormat, entryPath, utils.FormatFileSize(run.locator.MaxFileSizeBytes))
		return
	}
	if run.statistics.TotalSizeBytes+fileSize > config.MaxTotalSizeBytes {
		run.sink.Warnf(totalSizeSkipMessageFormat, entryPath)
		return
	}
	if run.statistics.TotalFiles >= config.MaxFileCount {
		run.sink.Warnf(fileLimitMessageFormat, config.MaxFileCount)
		return
	}

	run.statistics.TotalFiles++
	run.statistics.TotalSizeBytes += fileSize

	fileNode := &types.FileSystemNode{
		Name:         fileInformation.Name(),
		Kind:         types.NodeKindFile,
		AbsolutePath: entryPath,
		RelativePath: run.relativePath(entryPath),
		SizeBytes:    fileSize,
		FileCount:    1,
		Depth:        parentNode.Depth + 1,
	}

	parentNode.Children = append(parentNode.Children, fileNode)
	parentNode.SizeBytes += fileSize
	parentNode.FileCount++
}

func (run *traversalRun) limitExceeded(currentDepth int) bool {
	if currentDepth > config.MaxDirectoryDepth {
		run.sink.Warnf(depthLimitMessageFormat, config.MaxDirectoryDepth)
		return true
	}
	if run.statistics.TotalFiles >= config.MaxFileCount {
		run.sink.Warnf(fileLimitMessageFormat, config.MaxFileCount)
		return true
	}
	if run.statistics.TotalSizeBytes >= config.MaxTotalSizeBytes {
		run.sink.Warnf(totalSizeLimitMessageFormat, float64(config.MaxTotalSizeBytes)/1024/1024)
		return true
	}
	return false
}

func (run *traversalRun) relativePath(absolutePath string) string {
	return utils.RelativePathOrSelf(absolutePath, run.locator.LocalRootPath)
}

// shouldExclude reports whether the entry matches any ignore pattern. Paths
// that escape the traversal root are always excluded.
func (run *traversalRun) shouldExclude(entryPath string) bool {
	relativePath, relativeError := rootRelative(entryPath, run.locator.LocalRootPath)
	if relativeError != nil {
		return true
	}
	return run.ignoreMatcher.Matches(relativePath)
}

// shouldInclude reports whether the entry matches any include pattern.
// Directories are matched with a trailing slash so directory patterns like
// "src/" select them.
func (run *traversalRun) shouldInclude(entryPath string, entryIsDirectory bool) bool {
	relativePath, relativeError := rootRelative(entryPath, run.locator.LocalRootPath)
	if relativeError != nil {
		return false
	}
	if entryIsDirectory {
		relativePath += includeDirectoryMark
	}
	return run.includeMatcher.Matches(relativePath)
}

func rootRelative(entryPath string, rootPath string) (string, error) {
	relativePath, relativeError := filepath.Rel(rootPath, entryPath)
	if relativeError != nil {
		return "", relativeError
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes root %s", entryPath, rootPath)
	}
	return filepath.ToSlash(relativePath), nil
}

func sortChildren(directoryNode *types.FileSystemNode) {
	children := directoryNode.Children
	sort.SliceStable(children, func(firstIndex, secondIndex int) bool {
		firstGroup, firstName := childSortKey(children[firstIndex])
		secondGroup, secondName := childSortKey(children[secondIndex])
		if firstGroup != secondGroup {
			return firstGroup < secondGroup
		}
		return firstName < secondName
	})
}

// childSortKey groups a readme first, then visible files, hidden files,
// visible directories, hidden directories. Symlinks sort with directories.
func childSortKey(childNode *types.FileSystemNode) (int, string) {
	loweredName := strings.ToLower(childNode.Name)
	if childNode.Kind == types.NodeKindFile {
		if loweredName == readmeFileName {
			return sortGroupReadme, loweredName
		}
		if strings.HasPrefix(loweredName, hiddenNamePrefix) {
			return sortGroupHiddenFile, loweredName
		}
		return sortGroupVisibleFile, loweredName
	}
	if strings.HasPrefix(loweredName, hiddenNamePrefix) {
		return sortGroupHiddenDirectory, loweredName
	}
	return sortGroupVisibleDirectory, loweredName
}
