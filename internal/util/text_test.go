package util

import "testing"

func TestNormalizeValue(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Provider NPI#", "providernpi"},
		{"  Tax   ID: ", "taxid"},
		{"(555) 123-4567", "5551234567"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeValue(c.in); got != c.want {
			t.Errorf("NormalizeValue(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDigitsOnly(t *testing.T) {
	if got := DigitsOnly("(555) 123-4567"); got != "5551234567" {
		t.Fatalf("got %q", got)
	}
	if got := DigitsOnly("no digits"); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestDiceCoefficient(t *testing.T) {
	if got := DiceCoefficient("night", "night"); got != 1 {
		t.Fatalf("identical strings: %v", got)
	}
	if got := DiceCoefficient("night", "nacht"); got != 0.25 {
		t.Fatalf("night/nacht: %v", got)
	}
	if got := DiceCoefficient("", "anything"); got != 0 {
		t.Fatalf("empty: %v", got)
	}
	if got := DiceCoefficient("a", "ab"); got != 0 {
		t.Fatalf("single rune: %v", got)
	}

	// Close header spellings must clear the fuzzy threshold; unrelated ones
	// must stay well below it.
	if got := DiceCoefficient("effdate", "effectivedate"); got <= 0.5 {
		t.Fatalf("effdate/effectivedate too low: %v", got)
	}
	if got := DiceCoefficient("notes", "providernpi"); got > 0.2 {
		t.Fatalf("notes/providernpi too high: %v", got)
	}
}
