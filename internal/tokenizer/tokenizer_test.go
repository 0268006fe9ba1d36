package tokenizer

import "testing"

func TestNewCounterDefaultEncoding(t *testing.T) {
	counter, err := NewCounter("")
	if err != nil {
		t.Fatalf("NewCounter error: %v", err)
	}
	if counter.Name() != defaultEncodingName {
		t.Fatalf("expected %s, got %q", defaultEncodingName, counter.Name())
	}
	tokens, err := counter.CountString("hello world")
	if err != nil {
		t.Fatalf("CountString error: %v", err)
	}
	if tokens <= 0 {
		t.Fatalf("expected positive token count, got %d", tokens)
	}
}

func TestNewCounterKnownModel(t *testing.T) {
	counter, err := NewCounter("gpt-4o")
	if err != nil {
		t.Fatalf("NewCounter error: %v", err)
	}
	if counter.Name() != "gpt-4o" {
		t.Fatalf("expected model name preserved, got %q", counter.Name())
	}
}

func TestNewCounterUnknownModelFallsBack(t *testing.T) {
	counter, err := NewCounter("made-up-model-9000")
	if err != nil {
		t.Fatalf("NewCounter error: %v", err)
	}
	if counter.Name() != defaultEncodingName {
		t.Fatalf("expected fallback to %s, got %q", defaultEncodingName, counter.Name())
	}
}

func TestFormatCount(t *testing.T) {
	cases := []struct {
		tokens   int
		expected string
	}{
		{tokens: 0, expected: "0"},
		{tokens: 999, expected: "999"},
		{tokens: 1000, expected: "1.0k"},
		{tokens: 1250, expected: "1.2k"},
		{tokens: 999_999, expected: "1000.0k"},
		{tokens: 1_200_000, expected: "1.2M"},
	}
	for index, testCase := range cases {
		if formatted := FormatCount(testCase.tokens); formatted != testCase.expected {
			t.Errorf("case %d: expected %q, got %q", index, testCase.expected, formatted)
		}
	}
}
