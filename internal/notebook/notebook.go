// Package notebook converts Jupyter notebooks into executable Python scripts
// so their cells and outputs can be embedded in a digest as plain text.
package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/ingest/internal/types"
)

// ErrInvalidNotebook signals notebook data that cannot be converted.
var ErrInvalidNotebook = errors.New("invalid notebook")

const (
	scriptHeader        = "# Jupyter notebook converted to Python script."
	cellSeparator       = "\n\n"
	tripleQuote         = `"""`
	outputCommentPrefix = "\n# Output:\n#   "
	outputLineSeparator = "\n#   "

	cellTypeMarkdown = "markdown"
	cellTypeCode     = "code"
	cellTypeRaw      = "raw"

	outputTypeStream        = "stream"
	outputTypeExecuteResult = "execute_result"
	outputTypeDisplayData   = "display_data"
	outputTypeError         = "error"

	plainTextMimeType = "text/plain"

	worksheetsDeprecatedMessage = "Worksheets are deprecated as of IPEP-17. Consider updating the notebook."
	multipleWorksheetsMessage   = "Multiple worksheets detected. Combining all worksheets into a single script."
)

type notebookDocument struct {
	Cells      []notebookCell      `json:"cells"`
	Worksheets []notebookWorksheet `json:"worksheets"`
}

type notebookWorksheet struct {
	Cells []notebookCell `json:"cells"`
}

type notebookCell struct {
	CellType string       `json:"cell_type"`
	Source   textLines    `json:"source"`
	Outputs  []cellOutput `json:"outputs"`
}

type cellOutput struct {
	OutputType string                     `json:"output_type"`
	Text       textLines                  `json:"text"`
	Data       map[string]json.RawMessage `json:"data"`
	ErrorName  string                     `json:"ename"`
	ErrorValue string                     `json:"evalue"`
}

// textLines accepts either a single JSON string or an array of strings, the
// two spellings the notebook format allows for source and output text.
type textLines []string

func (lines *textLines) UnmarshalJSON(data []byte) error {
	var single string
	if singleError := json.Unmarshal(data, &single); singleError == nil {
		*lines = textLines{single}
		return nil
	}
	var many []string
	if manyError := json.Unmarshal(data, &many); manyError != nil {
		return manyError
	}
	*lines = textLines(many)
	return nil
}

// Convert renders notebook JSON as a Python script. Markdown and raw cells
// become triple-quoted comments, code cells stay verbatim, and cell outputs
// are appended as hash comments when includeOutput is set. Deprecated
// worksheet containers are flattened with a warning on the sink.
func Convert(notebookData []byte, includeOutput bool, sink types.DiagnosticSink) (string, error) {
	var document notebookDocument
	if decodeError := json.Unmarshal(notebookData, &document); decodeError != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidNotebook, decodeError)
	}

	cells := document.Cells
	if len(document.Worksheets) > 0 {
		sink.Warnf(worksheetsDeprecatedMessage)
		if len(document.Worksheets) > 1 {
			sink.Warnf(multipleWorksheetsMessage)
		}
		cells = nil
		for _, worksheet := range document.Worksheets {
			cells = append(cells, worksheet.Cells...)
		}
	} else if document.Cells == nil {
		return "", fmt.Errorf("%w: notebook has no cells", ErrInvalidNotebook)
	}

	scriptBlocks := []string{scriptHeader}
	for _, cell := range cells {
		cellBlock, cellError := convertCell(cell, includeOutput)
		if cellError != nil {
			return "", cellError
		}
		if cellBlock != "" {
			scriptBlocks = append(scriptBlocks, cellBlock)
		}
	}

	return strings.Join(scriptBlocks, cellSeparator) + "\n", nil
}

func convertCell(cell notebookCell, includeOutput bool) (string, error) {
	switch cell.CellType {
	case cellTypeMarkdown, cellTypeCode, cellTypeRaw:
	default:
		return "", fmt.Errorf("unknown cell type: %s", cell.CellType)
	}

	cellSource := strings.Join(cell.Source, "")
	if cellSource == "" {
		return "", nil
	}

	if cell.CellType != cellTypeCode {
		return tripleQuote + "\n" + cellSource + "\n" + tripleQuote, nil
	}

	if includeOutput && len(cell.Outputs) > 0 {
		var outputLines []string
		for _, output := range cell.Outputs {
			extractedLines, extractError := extractOutput(output)
			if extractError != nil {
				return "", extractError
			}
			outputLines = append(outputLines, extractedLines...)
		}
		cellSource += outputCommentPrefix + strings.Join(outputLines, outputLineSeparator)
	}

	return cellSource, nil
}

func extractOutput(output cellOutput) ([]string, error) {
	switch output.OutputType {
	case outputTypeStream:
		return output.Text, nil
	case outputTypeExecuteResult, outputTypeDisplayData:
		rawPlainText, hasPlainText := output.Data[plainTextMimeType]
		if !hasPlainText {
			return nil, fmt.Errorf("output missing %s data", plainTextMimeType)
		}
		var plainTextLines textLines
		if decodeError := json.Unmarshal(rawPlainText, &plainTextLines); decodeError != nil {
			return nil, fmt.Errorf("output %s data: %w", plainTextMimeType, decodeError)
		}
		return plainTextLines, nil
	case outputTypeError:
		return []string{fmt.Sprintf("Error: %s: %s", output.ErrorName, output.ErrorValue)}, nil
	}
	return nil, fmt.Errorf("unknown output type: %s", output.OutputType)
}
