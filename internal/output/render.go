// Package output renders a traversed node tree into the three digest
// sections: a run summary, a connector-drawn directory tree, and the
// concatenated file contents.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/temirov/ingest/internal/tokenizer"
	"github.com/temirov/ingest/internal/types"
)

const (
	// contentSeparator is 48 columns wide; longer runs of "=" start
	// costing extra tokens under common BPE vocabularies.
	contentSeparator = "================================================"

	treeHeader          = "Directory structure:\n"
	treeBranchConnector = "├── "
	treeLastConnector   = "└── "
	treeBranchPadding   = "│   "
	treeLastPadding     = "    "

	directorySuffix   = "/"
	symlinkTargetMark = " -> "

	summaryRepositoryFormat = "Repository: %s/%s\n"
	summaryDirectoryFormat  = "Directory: %s\n"
	summaryCommitFormat     = "Commit: %s\n"
	summaryBranchFormat     = "Branch: %s\n"
	summarySubpathFormat    = "Subpath: %s\n"
	summaryFileCountFormat  = "Files analyzed: %d\n"
	summaryFileFormat       = "File: %s\n"
	summaryLineCountFormat  = "Lines: %s\n"
	summaryTokensPrefix     = "\nEstimated tokens: "

	defaultBranchMain   = "main"
	defaultBranchMaster = "master"
	rootSubpath         = "/"

	tokenCountWarningFormat = "Failed to estimate token count: %v"

	thousandsGroupWidth = 3
)

// Digest bundles the rendered sections of one ingestion.
type Digest struct {
	Summary string
	Tree    string
	Content string
}

// Renderer turns node trees into digests. A nil TokenCounter omits the token
// estimate line from the summary.
type Renderer struct {
	TokenCounter          tokenizer.Counter
	IncludeNotebookOutput bool
	Sink                  types.DiagnosticSink
}

// Render assembles the digest for rootNode. Unreadable files degrade to
// inline placeholder text rather than failing the whole digest.
func (renderer *Renderer) Render(rootNode *types.FileSystemNode, locator *types.Locator) *Digest {
	diagnosticSink := renderer.Sink
	if diagnosticSink == nil {
		diagnosticSink = types.NopSink{}
	}

	var summaryBuilder strings.Builder
	if locator.Owner != "" {
		summaryBuilder.WriteString(fmt.Sprintf(summaryRepositoryFormat, locator.Owner, locator.RepositoryName))
	} else {
		summaryBuilder.WriteString(fmt.Sprintf(summaryDirectoryFormat, locator.Slug))
	}
	if locator.Commit != "" {
		summaryBuilder.WriteString(fmt.Sprintf(summaryCommitFormat, locator.Commit))
	} else if locator.Branch != "" && locator.Branch != defaultBranchMain && locator.Branch != defaultBranchMaster {
		summaryBuilder.WriteString(fmt.Sprintf(summaryBranchFormat, locator.Branch))
	}

	singleFile := rootNode.Kind == types.NodeKindFile
	if locator.Subpath != rootSubpath && !singleFile {
		summaryBuilder.WriteString(fmt.Sprintf(summarySubpathFormat, locator.Subpath))
	}

	var digestContent string
	if singleFile {
		fileContent := renderer.resolveFileContent(rootNode, diagnosticSink)
		summaryBuilder.WriteString(fmt.Sprintf(summaryFileFormat, rootNode.Name))
		summaryBuilder.WriteString(fmt.Sprintf(summaryLineCountFormat, formatWithThousandsSeparators(countLines(fileContent))))
		digestContent = contentBlock(rootNode, fileContent)
	} else {
		summaryBuilder.WriteString(fmt.Sprintf(summaryFileCountFormat, rootNode.FileCount))
		digestContent = renderer.gatherContent(rootNode, diagnosticSink)
	}

	digestTree := renderTree(rootNode, locator)

	if tokenEstimate := renderer.estimateTokens(digestTree+digestContent, diagnosticSink); tokenEstimate != "" {
		summaryBuilder.WriteString(summaryTokensPrefix + tokenEstimate)
	}

	return &Digest{
		Summary: summaryBuilder.String(),
		Tree:    digestTree,
		Content: digestContent,
	}
}

func (renderer *Renderer) estimateTokens(digestText string, diagnosticSink types.DiagnosticSink) string {
	if renderer.TokenCounter == nil {
		return ""
	}
	totalTokens, countError := renderer.TokenCounter.CountString(digestText)
	if countError != nil {
		diagnosticSink.Warnf(tokenCountWarningFormat, countError)
		return ""
	}
	return tokenizer.FormatCount(totalTokens)
}

func renderTree(rootNode *types.FileSystemNode, locator *types.Locator) string {
	var treeBuilder strings.Builder
	treeBuilder.WriteString(treeHeader)
	writeTreeNode(&treeBuilder, rootNode, locator, "", true)
	return treeBuilder.String()
}

func writeTreeNode(treeBuilder *strings.Builder, node *types.FileSystemNode, locator *types.Locator, linePrefix string, isLast bool) {
	displayName := node.Name
	if displayName == "" {
		displayName = locator.Slug
	}
	switch node.Kind {
	case types.NodeKindDirectory:
		displayName += directorySuffix
	case types.NodeKindSymlink:
		if linkTarget, readlinkError := os.Readlink(node.AbsolutePath); readlinkError == nil {
			displayName += symlinkTargetMark + filepath.Base(linkTarget)
		}
	}

	connector := treeBranchConnector
	if isLast {
		connector = treeLastConnector
	}
	treeBuilder.WriteString(linePrefix + connector + displayName + "\n")

	if node.Kind != types.NodeKindDirectory {
		return
	}
	childPrefix := linePrefix + treeBranchPadding
	if isLast {
		childPrefix = linePrefix + treeLastPadding
	}
	for childIndex, childNode := range node.Children {
		writeTreeNode(treeBuilder, childNode, locator, childPrefix, childIndex == len(node.Children)-1)
	}
}

// countLines counts logical lines the way text editors display them: a
// trailing newline does not open an extra empty line.
func countLines(textContent string) int {
	if textContent == "" {
		return 0
	}
	lineCount := strings.Count(textContent, "\n")
	if !strings.HasSuffix(textContent, "\n") {
		lineCount++
	}
	return lineCount
}

func formatWithThousandsSeparators(value int) string {
	digits := strconv.Itoa(value)
	if len(digits) <= thousandsGroupWidth {
		return digits
	}
	var groupedBuilder strings.Builder
	leadingWidth := len(digits) % thousandsGroupWidth
	if leadingWidth > 0 {
		groupedBuilder.WriteString(digits[:leadingWidth])
	}
	for digitIndex := leadingWidth; digitIndex < len(digits); digitIndex += thousandsGroupWidth {
		if groupedBuilder.Len() > 0 {
			groupedBuilder.WriteString(",")
		}
		groupedBuilder.WriteString(digits[digitIndex : digitIndex+thousandsGroupWidth])
	}
	return groupedBuilder.String()
}
