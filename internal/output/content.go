package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/temirov/ingest/internal/notebook"
	"github.com/temirov/ingest/internal/types"
	"github.com/temirov/ingest/internal/utils"
)

const (
	notebookExtension = ".ipynb"

	nonTextPlaceholder     = "[Non-text file]"
	undecodableContentText = "Error: Unable to decode file with available encodings"
	fileReadErrorFormat    = "Error reading file: %v"
	notebookErrorFormat    = "Error processing notebook: %v"

	contentBlockSeparator = "\n"
)

// gatherContent walks the tree depth-first and joins one block per node.
// Directory nodes contribute the joined blocks of their children.
func (renderer *Renderer) gatherContent(node *types.FileSystemNode, diagnosticSink types.DiagnosticSink) string {
	if node.Kind != types.NodeKindDirectory {
		bodyContent := ""
		if node.Kind == types.NodeKindFile {
			bodyContent = renderer.resolveFileContent(node, diagnosticSink)
		}
		return contentBlock(node, bodyContent)
	}
	childBlocks := make([]string, 0, len(node.Children))
	for _, childNode := range node.Children {
		childBlocks = append(childBlocks, renderer.gatherContent(childNode, diagnosticSink))
	}
	return strings.Join(childBlocks, contentBlockSeparator)
}

func contentBlock(node *types.FileSystemNode, bodyContent string) string {
	headerLine := strings.ToUpper(string(node.Kind)) + ": " + node.RelativePath
	if node.Kind == types.NodeKindSymlink {
		if linkTarget, readlinkError := os.Readlink(node.AbsolutePath); readlinkError == nil {
			headerLine += symlinkTargetMark + filepath.Base(linkTarget)
		}
	}
	blockLines := []string{contentSeparator, headerLine, contentSeparator, bodyContent}
	return strings.Join(blockLines, "\n") + "\n\n"
}

// resolveFileContent reads one file for inclusion in the digest. Failures
// never abort the digest; they surface as placeholder text in the block.
func (renderer *Renderer) resolveFileContent(node *types.FileSystemNode, diagnosticSink types.DiagnosticSink) string {
	if !utils.IsTextFile(node.AbsolutePath) {
		return nonTextPlaceholder
	}
	if filepath.Ext(node.Name) == notebookExtension {
		notebookData, readError := os.ReadFile(node.AbsolutePath)
		if readError != nil {
			return fmt.Sprintf(fileReadErrorFormat, readError)
		}
		notebookScript, convertError := notebook.Convert(notebookData, renderer.IncludeNotebookOutput, diagnosticSink)
		if convertError != nil {
			return fmt.Sprintf(notebookErrorFormat, convertError)
		}
		return notebookScript
	}
	textContent, readError := utils.ReadTextFile(node.AbsolutePath)
	if readError != nil {
		if errors.Is(readError, utils.ErrUndecodableContent) {
			return undecodableContentText
		}
		return fmt.Sprintf(fileReadErrorFormat, readError)
	}
	return textContent
}
