package util

import "testing"

func TestCountTokens_WordsAndPunctuation(t *testing.T) {
	got := CountTokens("hello, world!")
	if got != 4 {
		t.Fatalf("got %d, want 4", got)
	}
}

func TestCountTokens_Empty(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestCountTokens_PlainWordsNoPunctuation(t *testing.T) {
	got := CountTokens("the diversity enforcer picks sources")
	if got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestSumTokens_AddsAcrossContents(t *testing.T) {
	got := SumTokens([]string{"hello, world!", "one more"})
	if got != 6 {
		t.Fatalf("got %d, want 6", got)
	}
}
