package facematch

import (
	"testing"

	"github.com/kozaktomas/face-id/internal/database"
)

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Honza", "Honza"},
		{"Jiří", "Jiri"},
		{"café", "cafe"},
		{"naïve", "naive"},
		{"hello", "hello"},
		{"Žluťoučký kůň", "Zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizePersonName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"JOHN DOE", "john doe"},
		{"jan-novák", "jan novak"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizePersonName(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePersonName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFilterByName(t *testing.T) {
	entries := []database.Entry{
		{Position: 0, IdentityID: "S001", Metadata: database.Metadata{"name": database.String("Jan Novák")}},
		{Position: 1, IdentityID: "S002", Metadata: database.Metadata{"name": database.String("Jiří Dvořák")}},
		{Position: 2, IdentityID: "jan-kral"},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"jan-novak", []string{"S001"}},
		{"DVORAK", []string{"S002"}},
		{"jan", []string{"S001", "jan-kral"}},
		{"", []string{"S001", "S002", "jan-kral"}},
		{"nobody", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := FilterByName(entries, tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("FilterByName(%q) returned %d entries, want %d", tt.query, len(got), len(tt.want))
			}
			for i, e := range got {
				if e.IdentityID != tt.want[i] {
					t.Errorf("FilterByName(%q)[%d] = %s, want %s", tt.query, i, e.IdentityID, tt.want[i])
				}
			}
		})
	}
}
