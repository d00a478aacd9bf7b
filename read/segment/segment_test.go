package segment

import (
	"strings"
	"testing"
)

func TestSentencesPlainText(t *testing.T) {
	seg := New()

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:  "simple sentences",
			input: "Hello world. How are you? The answer is fine!",
			expected: []string{
				"Hello world.",
				"How are you?",
				"The answer is fine!",
			},
		},
		{
			name:  "newline is a boundary",
			input: "First line without a period\nSecond line here.",
			expected: []string{
				"First line without a period",
				"Second line here.",
			},
		},
		{
			name:  "abbreviations do not split",
			input: "Dr. Smith arrived. He left at 3.14 p.m. sharp.",
			expected: []string{
				"Dr. Smith arrived.",
				"He left at 3.14 p.m. sharp.",
			},
		},
		{
			name:  "ellipsis stays inside",
			input: "Wait... the story continues. Done!",
			expected: []string{
				"Wait... the story continues.",
				"Done!",
			},
		},
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := seg.Sentences(tt.input)
			if len(spans) != len(tt.expected) {
				t.Fatalf("expected %d sentences, got %d: %#v", len(tt.expected), len(spans), spans)
			}
			for i, want := range tt.expected {
				if spans[i].Text != want {
					t.Errorf("sentence %d: expected %q, got %q", i, want, spans[i].Text)
				}
			}
		})
	}
}

func TestSentenceSpansAreSubstrings(t *testing.T) {
	seg := New()
	input := "One sentence here. Another one follows! A third, with commas, ends it."
	for _, span := range seg.Sentences(input) {
		if got := input[span.Start:span.End]; got != span.Text {
			t.Errorf("span [%d:%d] = %q, want %q", span.Start, span.End, got, span.Text)
		}
	}
}

func TestSentenceAdmission(t *testing.T) {
	seg := New()
	// Running heads and bare page numbers must be filtered out.
	input := "42\n* * * * *\nThe actual content of the page starts here."
	spans := seg.Sentences(input)
	if len(spans) != 1 {
		t.Fatalf("expected 1 admitted sentence, got %d: %#v", len(spans), spans)
	}
	if !strings.HasPrefix(spans[0].Text, "The actual content") {
		t.Errorf("unexpected admitted sentence: %q", spans[0].Text)
	}
}

func TestCleanForSpeech(t *testing.T) {
	seg := New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "citation markers",
			input: "The result was significant [12] as shown (3) earlier.",
			want:  "The result was significant as shown earlier.",
		},
		{
			name:  "superscript digits",
			input: "Energy is mc² according to theory¹.",
			want:  "Energy is mc according to theory.",
		},
		{
			name:  "bullets and arrows",
			input: "• First point → second point",
			want:  "First point second point",
		},
		{
			name:  "hyphenated line break",
			input: "This is an inter-\nesting result.",
			want:  "This is an interesting result.",
		},
		{
			name:  "box drawing",
			input: "│ Table cell │ Next cell │",
			want:  "Table cell Next cell",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := seg.CleanForSpeech(tt.input)
			if got != tt.want {
				t.Errorf("CleanForSpeech(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanForSpeechIdempotent(t *testing.T) {
	seg := New()
	inputs := []string{
		"Plain text without markers.",
		"Cited [1] text with super² scripts and bullets • here.",
		"Hyphen-\nated words re-\njoined once.",
		"",
	}
	for _, in := range inputs {
		once := seg.CleanForSpeech(in)
		twice := seg.CleanForSpeech(once)
		if once != twice {
			t.Errorf("not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestWordsWithPositions(t *testing.T) {
	seg := New()
	input := "The +++ quick fox"
	words := seg.WordsWithPositions(input)
	if len(words) != 4 {
		t.Fatalf("expected 4 tokens, got %d", len(words))
	}
	for i, w := range words {
		if input[w.Offset:w.Offset+len(w.Text)] != w.Text {
			t.Errorf("token %d offset mismatch: %q at %d", i, w.Text, w.Offset)
		}
	}
	if words[1].Real {
		t.Error("symbol-only token must not be real")
	}
	if !words[0].Real || !words[2].Real || !words[3].Real {
		t.Error("alphanumeric tokens must be real")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Hello,", "hello"},
		{"QUICK!", "quick"},
		{"it's", "its"},
		{"+++", ""},
		{"3rd", "3rd"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAdmit(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"A normal sentence with plenty of letters.", true},
		{"42", false},                  // fewer than 3 alphanumerics
		{"* * * * abc * * * *", false}, // density below 30%
		{"abc", true},                  // exactly 3 alphanumerics
		{"", false},
	}
	for _, tt := range tests {
		if got := Admit(tt.in); got != tt.want {
			t.Errorf("Admit(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
