// Package tokenizer estimates token counts for digest text.
package tokenizer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates token counts for text content.
type Counter interface {
	Name() string
	CountString(input string) (int, error)
}

const (
	defaultEncodingName = "cl100k_base"

	millionTokens  = 1_000_000
	thousandTokens = 1_000
)

// NewCounter returns a Counter for the requested model or encoding name.
// An empty name selects the default encoding; unknown names fall back to it
// so estimation never blocks an ingestion.
func NewCounter(modelName string) (Counter, error) {
	trimmedModel := strings.TrimSpace(modelName)
	if trimmedModel == "" {
		return counterForEncoding(defaultEncodingName)
	}

	loweredModel := strings.ToLower(trimmedModel)
	if encoding, encodingError := tiktoken.EncodingForModel(loweredModel); encodingError == nil && encoding != nil {
		return openAICounter{encoding: encoding, name: loweredModel}, nil
	}
	if encoding, encodingError := tiktoken.GetEncoding(loweredModel); encodingError == nil && encoding != nil {
		return openAICounter{encoding: encoding, name: loweredModel}, nil
	}

	return counterForEncoding(defaultEncodingName)
}

func counterForEncoding(encodingName string) (Counter, error) {
	encoding, encodingError := tiktoken.GetEncoding(encodingName)
	if encodingError != nil {
		return nil, fmt.Errorf("initialize tokenizer %s: %w", encodingName, encodingError)
	}
	return openAICounter{encoding: encoding, name: encodingName}, nil
}

// FormatCount renders a token total the way digests present it: a plain
// integer below one thousand, then one decimal with a k or M suffix.
func FormatCount(totalTokens int) string {
	switch {
	case totalTokens >= millionTokens:
		return fmt.Sprintf("%.1fM", float64(totalTokens)/millionTokens)
	case totalTokens >= thousandTokens:
		return fmt.Sprintf("%.1fk", float64(totalTokens)/thousandTokens)
	}
	return strconv.Itoa(totalTokens)
}

type openAICounter struct {
	encoding *tiktoken.Tiktoken
	name     string
}

func (counter openAICounter) Name() string {
	return counter.name
}

func (counter openAICounter) CountString(input string) (int, error) {
	if counter.encoding == nil {
		return 0, errors.New("nil tiktoken encoder")
	}
	tokenIDs := counter.encoding.Encode(input, nil, nil)
	return len(tokenIDs), nil
}
