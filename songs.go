package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ===========================
// Song Library
// ===========================

// KaraokeSong is one entry of the karaoke song registry. Duration is in
// seconds and LyricsFile names an LRC file inside the karaoke data directory.
type KaraokeSong struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Duration   int    `json:"duration"`
	LyricsFile string `json:"lyrics_file"`
}

// builtinSongs is the shipped registry. A songs.json file in the data
// directory extends or overrides it.
var builtinSongs = []KaraokeSong{
	{ID: "happier", Title: "Happier", Artist: "Marshmello ft. Bastille", Duration: 214, LyricsFile: "happier.lrc"},
	{ID: "stereo_hearts", Title: "Stereo Hearts", Artist: "Gym Class Heroes ft. Adam Levine", Duration: 232, LyricsFile: "stereo_hearts.lrc"},
	{ID: "viva_la_vida", Title: "Viva La Vida", Artist: "Coldplay", Duration: 242, LyricsFile: "viva_la_vida.lrc"},
	{ID: "something_blue", Title: "Something Blue", Artist: "VOILÀ", Duration: 187, LyricsFile: "something_blue.lrc"},
	{ID: "youre_welcome", Title: "You're Welcome", Artist: "Dwayne Johnson", Duration: 169, LyricsFile: "youre_welcome.lrc"},
}

// SongLibrary owns the song registry and caches parsed lyrics per song.
type SongLibrary struct {
	mu     sync.Mutex
	dir    string
	songs  []KaraokeSong
	byID   map[string]KaraokeSong
	lyrics map[string][]LyricLine
}

var (
	songLibrary *SongLibrary
	OnceSongs   sync.Once
)

// GetSongLibrary returns the singleton SongLibrary instance.
func GetSongLibrary() *SongLibrary {
	OnceSongs.Do(func() {
		dir := "."
		if GlobalConfig != nil && GlobalConfig.KaraokeDataDir != "" {
			dir = GlobalConfig.KaraokeDataDir
		}
		songLibrary = NewSongLibrary(dir)
	})
	return songLibrary
}

// NewSongLibrary builds a library rooted at dir and loads the registry.
func NewSongLibrary(dir string) *SongLibrary {
	l := &SongLibrary{dir: dir}
	l.reload()
	return l
}

// Reload re-reads songs.json and drops all cached lyrics.
func (l *SongLibrary) Reload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reload()
}

func (l *SongLibrary) reload() {
	l.songs = append([]KaraokeSong(nil), builtinSongs...)
	l.lyrics = make(map[string][]LyricLine)

	if data, err := os.ReadFile(filepath.Join(l.dir, "songs.json")); err == nil {
		var extra []KaraokeSong
		if err := json.Unmarshal(data, &extra); err != nil {
			LogKaraoke(MsgKaraokeSongsFileInvalid, err)
		} else {
			for _, s := range extra {
				l.upsert(s)
			}
		}
	}

	l.byID = make(map[string]KaraokeSong, len(l.songs))
	for _, s := range l.songs {
		l.byID[s.ID] = s
	}
	LogKaraoke(MsgKaraokeSongsLoaded, len(l.songs))
}

func (l *SongLibrary) upsert(s KaraokeSong) {
	for i, existing := range l.songs {
		if existing.ID == s.ID {
			l.songs[i] = s
			return
		}
	}
	l.songs = append(l.songs, s)
}

// All returns the registry in stable order.
func (l *SongLibrary) All() []KaraokeSong {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]KaraokeSong(nil), l.songs...)
}

// Get looks up a song by ID.
func (l *SongLibrary) Get(id string) (KaraokeSong, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.byID[id]
	return s, ok
}

// Lyrics loads and parses the LRC file for a song, caching the result.
// Parse failures come back as *ParseError.
func (l *SongLibrary) Lyrics(id string) ([]LyricLine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lines, ok := l.lyrics[id]; ok {
		return lines, nil
	}
	song, ok := l.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown song: %s", id)
	}

	data, err := os.ReadFile(filepath.Join(l.dir, song.LyricsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read lyrics for %s: %w", id, err)
	}
	lines, err := ParseLRC(string(data))
	if err != nil {
		return nil, err
	}
	l.lyrics[id] = lines
	return lines, nil
}
