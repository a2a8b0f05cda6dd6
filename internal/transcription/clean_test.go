package transcription

import "testing"

func TestExtractContent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"no quotes", "hello", "hello"},
		{"quoted phrase", "he said 'hi there' today", "hi there"},
		{"first pair only", "'a''b'", "a"},
		{"empty quotes", "x '' y", ""},
		{"single quote only", "it's fine", "it's fine"},
		{"whitespace kept", "' padded '", " padded "},
		{"unicode", "结果是'你好世界'。", "你好世界"},
		{"double quotes untouched", `"hello"`, `"hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractContent(tt.input); got != tt.expected {
				t.Errorf("ExtractContent(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}
