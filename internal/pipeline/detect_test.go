package pipeline

import "testing"

func TestDetectRosterRequestPositive(t *testing.T) {
	res := DetectRosterRequest(
		"Provider Roster Update",
		"Please add the following provider.\nNPI: 1234567893\nEffective Date: 01/01/2026",
		"", nil)
	if !res.IsRoster {
		t.Fatalf("score = %v", res.Score)
	}
	if res.Reason != "rules_positive" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestDetectRosterRequestNegative(t *testing.T) {
	res := DetectRosterRequest(
		"Weekly team lunch",
		"Pizza on Friday at noon. See you there!",
		"", nil)
	if res.IsRoster {
		t.Fatalf("score = %v", res.Score)
	}
	if res.Reason != "rules_negative" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestDetectRosterRequestAttachmentSignal(t *testing.T) {
	plain := DetectRosterRequest("Provider roster", "See attached.", "", nil)
	if plain.IsRoster {
		t.Fatalf("bare message scored %v", plain.Score)
	}
	withXLSX := DetectRosterRequest("Provider roster", "See attached.", "", []string{"august_roster.xlsx"})
	if !withXLSX.IsRoster {
		t.Fatalf("xlsx attachment scored %v", withXLSX.Score)
	}
	if withXLSX.Score <= plain.Score {
		t.Fatalf("attachment did not raise score: %v vs %v", withXLSX.Score, plain.Score)
	}
}

func TestDetectRosterRequestNPIRuns(t *testing.T) {
	res := DetectRosterRequest("FYI", "1234567893 and 9876543210 in the list", "", nil)
	if res.Score < 0.4 {
		t.Fatalf("two npi-like runs scored %v", res.Score)
	}
}

func TestCountNPILike(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"1234567893", 1},
		{"NPI: 1234567893 and 9876543210", 2},
		{"phone 5551234567890 is eleven+", 0},
		{"123456789", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := countNPILike(tc.text); got != tc.want {
			t.Errorf("countNPILike(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
