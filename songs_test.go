package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeLibraryFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	lrc := "[00:05.00]First line\n[00:10.00]Second line\n"
	if err := os.WriteFile(filepath.Join(dir, "test_song.lrc"), []byte(lrc), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.lrc"), []byte("no tags here\n"), 0644); err != nil {
		t.Fatal(err)
	}

	songs := `[
		{"id": "test_song", "title": "Test Song", "artist": "Tester", "duration": 100, "lyrics_file": "test_song.lrc"},
		{"id": "broken", "title": "Broken", "artist": "Tester", "duration": 50, "lyrics_file": "broken.lrc"},
		{"id": "happier", "title": "Happier (Override)", "artist": "Tester", "duration": 1, "lyrics_file": "test_song.lrc"}
	]`
	if err := os.WriteFile(filepath.Join(dir, "songs.json"), []byte(songs), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestSongLibraryRegistryAndOverride(t *testing.T) {
	l := NewSongLibrary(writeLibraryFixture(t))

	if _, ok := l.Get("viva_la_vida"); !ok {
		t.Error("builtin song viva_la_vida missing")
	}
	s, ok := l.Get("test_song")
	if !ok {
		t.Fatal("songs.json entry test_song missing")
	}
	if s.Duration != 100 {
		t.Errorf("Duration = %d, want 100", s.Duration)
	}
	over, _ := l.Get("happier")
	if over.Title != "Happier (Override)" {
		t.Errorf("override not applied, Title = %q", over.Title)
	}

	all := l.All()
	if len(all) != len(builtinSongs)+2 {
		t.Errorf("All() returned %d songs, want %d", len(all), len(builtinSongs)+2)
	}
	// Builtins keep their shipped order.
	if all[0].ID != "happier" || all[1].ID != "stereo_hearts" {
		t.Errorf("registry order changed: %s, %s", all[0].ID, all[1].ID)
	}
}

func TestSongLibraryLyrics(t *testing.T) {
	l := NewSongLibrary(writeLibraryFixture(t))

	lines, err := l.Lyrics("test_song")
	if err != nil {
		t.Fatalf("Lyrics returned error: %v", err)
	}
	if len(lines) != 2 || lines[0].Text != "First line" {
		t.Errorf("unexpected lyrics: %+v", lines)
	}

	again, err := l.Lyrics("test_song")
	if err != nil {
		t.Fatalf("cached Lyrics returned error: %v", err)
	}
	if len(again) != 2 {
		t.Errorf("cached lyrics differ: %+v", again)
	}
}

func TestSongLibraryLyricsParseError(t *testing.T) {
	l := NewSongLibrary(writeLibraryFixture(t))

	_, err := l.Lyrics("broken")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("Lyrics(broken) error = %v, want *ParseError", err)
	}
}

func TestSongLibraryUnknownSong(t *testing.T) {
	l := NewSongLibrary(writeLibraryFixture(t))

	if _, ok := l.Get("nope"); ok {
		t.Error("Get(nope) = ok, want missing")
	}
	if _, err := l.Lyrics("nope"); err == nil {
		t.Error("Lyrics(nope) error = nil, want error")
	}
}
