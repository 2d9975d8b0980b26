package main

import (
	"errors"
	"testing"
)

func TestParseLRCSortsAndDropsInvalidLines(t *testing.T) {
	raw := "[00:10.00]Hello\n[00:05.00]World\n[bad line no tag]\n"

	lines, err := ParseLRC(raw)
	if err != nil {
		t.Fatalf("ParseLRC returned error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Timestamp != 5.0 || lines[0].Text != "World" {
		t.Errorf("lines[0] = (%v, %q), want (5, World)", lines[0].Timestamp, lines[0].Text)
	}
	if lines[1].Timestamp != 10.0 || lines[1].Text != "Hello" {
		t.Errorf("lines[1] = (%v, %q), want (10, Hello)", lines[1].Timestamp, lines[1].Text)
	}
}

func TestParseLRCMultipleTagsPerLine(t *testing.T) {
	lines, err := ParseLRC("[00:05.00][01:05.00]Chorus\n")
	if err != nil {
		t.Fatalf("ParseLRC returned error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Timestamp != 5.0 || lines[1].Timestamp != 65.0 {
		t.Errorf("timestamps = %v, %v, want 5, 65", lines[0].Timestamp, lines[1].Timestamp)
	}
	if lines[0].Text != "Chorus" || lines[1].Text != "Chorus" {
		t.Errorf("texts = %q, %q, want Chorus twice", lines[0].Text, lines[1].Text)
	}
}

func TestParseLRCSkipsMetadataTags(t *testing.T) {
	raw := "[ar:Some Artist]\n[ti:Some Title]\n[00:01.00]First\n"
	lines, err := ParseLRC(raw)
	if err != nil {
		t.Fatalf("ParseLRC returned error: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0].Text != "First" {
		t.Errorf("text = %q, want First", lines[0].Text)
	}
}

func TestParseLRCColonFractionAndShortForms(t *testing.T) {
	lines, err := ParseLRC("[01:30:50]A\n[2:03]B\n[00:00.5]C\n")
	if err != nil {
		t.Fatalf("ParseLRC returned error: %v", err)
	}
	want := []LyricLine{
		{Timestamp: 0.5, Text: "C"},
		{Timestamp: 90.5, Text: "A"},
		{Timestamp: 123.0, Text: "B"},
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %+v, want %+v", i, lines[i], want[i])
		}
	}
}

func TestParseLRCKeepsEmptyTaggedLines(t *testing.T) {
	lines, err := ParseLRC("[00:01.00]One\n[00:02.00]\n[00:03.00]Three\n")
	if err != nil {
		t.Fatalf("ParseLRC returned error: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[1].Text != "" {
		t.Errorf("lines[1].Text = %q, want empty", lines[1].Text)
	}
}

func TestParseLRCStableSortForEqualTimestamps(t *testing.T) {
	lines, err := ParseLRC("[00:05.00]First\n[00:05.00]Second\n")
	if err != nil {
		t.Fatalf("ParseLRC returned error: %v", err)
	}
	if lines[0].Text != "First" || lines[1].Text != "Second" {
		t.Errorf("equal timestamps reordered: %q, %q", lines[0].Text, lines[1].Text)
	}
}

func TestParseLRCNoValidLines(t *testing.T) {
	for _, raw := range []string{"", "just some text\nmore text", "[ar:Artist]\n[ti:Title]"} {
		_, err := ParseLRC(raw)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("ParseLRC(%q) error = %v, want *ParseError", raw, err)
		}
	}
}

func TestParseLRCIsPure(t *testing.T) {
	raw := "[00:10.00]Hello\n[00:05.00]World\n"
	first, err := ParseLRC(raw)
	if err != nil {
		t.Fatalf("ParseLRC returned error: %v", err)
	}
	second, err := ParseLRC(raw)
	if err != nil {
		t.Fatalf("ParseLRC returned error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("repeated parse differs in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("repeated parse differs at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}
