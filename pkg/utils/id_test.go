package utils

import (
	"strings"
	"testing"
)

func TestGenerateCampaignID(t *testing.T) {
	id1 := GenerateCampaignID()
	id2 := GenerateCampaignID()

	if !strings.HasPrefix(id1, "cal-") {
		t.Errorf("GenerateCampaignID should start with 'cal-': %s", id1)
	}
	if id1 == id2 {
		t.Error("GenerateCampaignID should return unique IDs")
	}
}

func TestRunLabel(t *testing.T) {
	tests := []struct {
		prefix string
		n      int
		want   string
	}{
		{"PC", 1, "PC1"},
		{"", 12, "PC12"},
		{"run", 3, "run3"},
	}
	for _, tt := range tests {
		if got := RunLabel(tt.prefix, tt.n); got != tt.want {
			t.Errorf("RunLabel(%q, %d) = %q, want %q", tt.prefix, tt.n, got, tt.want)
		}
	}
}

func TestParseRunLabel(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		want    int
		wantErr bool
	}{
		{"Simple", "PC7", 7, false},
		{"Whitespace", "  PC15 ", 15, false},
		{"Wrong prefix", "XX7", 0, true},
		{"No number", "PC", 0, true},
		{"Zero", "PC0", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRunLabel("PC", tt.label)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.label)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
