package language

import "testing"

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"eng", "en"},
		{"fre", "fr"},
		{"ger", "de"},
		{"chi", "zh"},
		{"english", "en"},
		{"German", "de"},
		{"pt-BR", "pt"},
		{"en-GB", "en"},
		{"auto", ""},
		{"", ""},
		{"not a language", ""},
	}
	for _, tt := range tests {
		if got := ToISO2(tt.input); got != tt.expected {
			t.Errorf("ToISO2(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "English"},
		{"deu", "German"},
		{"auto", "Auto-detect"},
		{"###", "###"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.input); got != tt.expected {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestIsAuto(t *testing.T) {
	if !IsAuto(" Auto ") {
		t.Fatal("expected auto")
	}
	if IsAuto("en") {
		t.Fatal("expected en to be explicit")
	}
}
