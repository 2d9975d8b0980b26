package main

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ===========================
// LRC Lyrics Parser
// ===========================

// LyricLine is a single timestamped lyric line. Timestamp is in seconds
// from the start of the track.
type LyricLine struct {
	Timestamp float64
	Text      string
}

// ParseError indicates that lyric text could not be parsed into any
// timestamped lines.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return e.Msg
}

// lrcTagRegex matches a single [mm:ss], [mm:ss.xx] or [mm:ss:xx] timestamp
// tag. Metadata tags like [ar:...] never match because minutes must be digits.
var lrcTagRegex = regexp.MustCompile(`^\[(\d{1,2}):(\d{2})(?:[.:](\d{1,3}))?\]`)

// ParseLRC parses raw LRC text into lyric lines sorted by timestamp.
//
// A physical line may carry several timestamp tags; each tag yields one
// LyricLine sharing the line's text. Lines without a valid tag (metadata,
// comments, stray text) are skipped. A tagged line whose text is empty is
// kept as an empty-text spacing marker. The sort is stable, so lines that
// share a timestamp keep their input order.
func ParseLRC(raw string) ([]LyricLine, error) {
	var lines []LyricLine

	for _, physical := range strings.Split(raw, "\n") {
		rest := strings.TrimSpace(physical)

		var stamps []float64
		for {
			m := lrcTagRegex.FindStringSubmatch(rest)
			if m == nil {
				break
			}
			stamps = append(stamps, lrcTimestamp(m[1], m[2], m[3]))
			rest = rest[len(m[0]):]
		}
		if len(stamps) == 0 {
			continue
		}

		text := strings.TrimSpace(rest)
		for _, ts := range stamps {
			lines = append(lines, LyricLine{Timestamp: ts, Text: text})
		}
	}

	if len(lines) == 0 {
		return nil, &ParseError{Msg: "no timestamped lyric lines found"}
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Timestamp < lines[j].Timestamp
	})
	return lines, nil
}

// lrcTimestamp converts captured mm/ss/fraction groups into seconds. The
// fraction is scaled by its digit count, so "5", "50" and "500" all mean
// half a second.
func lrcTimestamp(mm, ss, frac string) float64 {
	minutes, _ := strconv.Atoi(mm)
	seconds, _ := strconv.Atoi(ss)
	ts := float64(minutes)*60 + float64(seconds)
	if frac != "" {
		f, _ := strconv.Atoi(frac)
		ts += float64(f) / math.Pow(10, float64(len(frac)))
	}
	return ts
}
