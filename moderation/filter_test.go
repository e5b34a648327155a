/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package moderation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsClean(t *testing.T) {
	f := New()

	cases := []struct {
		text string
		want bool
	}{
		{"Paper", true},
		{"Scissors", true},
		{"Hancock", true},
		{"peacock", true},
		{"parse tree", true},
		{"class action", true},
		{"", true},
		{"shit", false},
		{"SHIT", false},
		{"bullshit", false},
		{"f u c k", false},
		{"sh1t", false},
		{"fück", false},
		{"big dick", false},
		{"Ass", false},
	}

	for _, c := range cases {
		if got := f.IsClean(c.text); got != c.want {
			t.Errorf("IsClean(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestLoadExtraWords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wordlist.txt")

	content := "# house rules\n\nbroccoli\n  Durian  \n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if f.IsClean("Broccoli") {
		t.Error("extra term broccoli was not banned")
	}
	if f.IsClean("durian") {
		t.Error("extra term durian was not banned")
	}
	if !f.IsClean("house rules") {
		t.Error("comment line was treated as a term")
	}
	if f.Len() <= New().Len() {
		t.Errorf("Len = %d, want more than default %d", f.Len(), New().Len())
	}
}

func TestMultiWordTermsMatchAcrossSeparators(t *testing.T) {
	f := New("go die", "x y", "Ab")

	cases := []struct {
		text string
		want bool
	}{
		{"go die", false},
		{"Go-Die now", false},
		{"g0d1e", false},
		{"go home", true},
		{"x y", true},
		{"ab", false},
		{"crab", true},
	}

	for _, c := range cases {
		if got := f.IsClean(c.text); got != c.want {
			t.Errorf("IsClean(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing wordlist")
	}
}
