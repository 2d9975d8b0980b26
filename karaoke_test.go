package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type fakeRenderer struct {
	calls     int
	lastProg  float64
	lastBody  string
	failUntil int
}

func (r *fakeRenderer) Render(progress float64, body string) error {
	r.calls++
	r.lastProg = progress
	r.lastBody = body
	if r.calls <= r.failUntil {
		return errors.New("edit failed")
	}
	return nil
}

func testSong(duration int) KaraokeSong {
	return KaraokeSong{ID: "test_song", Title: "Test Song", Artist: "Tester", Duration: duration}
}

func testLines() []LyricLine {
	return []LyricLine{
		{Timestamp: 1, Text: "Line one"},
		{Timestamp: 3, Text: "Line two"},
		{Timestamp: 5, Text: ""},
		{Timestamp: 7, Text: "--"},
		{Timestamp: 8, Text: "-- Instrumental break --"},
		{Timestamp: 9, Text: "[Chorus]"},
		{Timestamp: 20, Text: "Line three"},
		{Timestamp: 22, Text: "Line four"},
	}
}

func newTestSession(t *testing.T, ks *KaraokeSystem, participants ...snowflake.ID) *KaraokeSession {
	t.Helper()
	if len(participants) == 0 {
		participants = []snowflake.ID{111}
	}
	sess, err := ks.Create(snowflake.ID(900), snowflake.ID(901), testSong(100), testLines(), participants)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return sess
}

func TestProgressFractionClamped(t *testing.T) {
	ks := NewKaraokeSystem()
	sess := newTestSession(t, ks)

	start := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	sess.Activate(start)

	if got := sess.ProgressFraction(start.Add(-5 * time.Second)); got != 0 {
		t.Errorf("progress before start = %v, want 0", got)
	}
	if got := sess.ProgressFraction(start.Add(50 * time.Second)); got != 0.5 {
		t.Errorf("progress at T+50 = %v, want 0.5", got)
	}
	if got := sess.ProgressFraction(start.Add(150 * time.Second)); got != 1.0 {
		t.Errorf("progress at T+150 = %v, want 1.0", got)
	}
	if got := sess.ElapsedSeconds(start.Add(30 * time.Second)); got != 30 {
		t.Errorf("elapsed at T+30 = %v, want 30", got)
	}
}

func TestProgressZeroBeforeActivation(t *testing.T) {
	ks := NewKaraokeSystem()
	sess := newTestSession(t, ks)

	now := time.Now()
	if got := sess.ElapsedSeconds(now); got != 0 {
		t.Errorf("elapsed before activation = %v, want 0", got)
	}
	if got := sess.ProgressFraction(now); got != 0 {
		t.Errorf("progress before activation = %v, want 0", got)
	}
}

func TestRenderStaticLyricsSkipsAndSeparates(t *testing.T) {
	ks := NewKaraokeSystem()
	sess := newTestSession(t, ks)

	body := sess.StaticLyrics()
	want := "Line one\nLine two\n\nLine three\nLine four"
	if body != want {
		t.Errorf("static lyrics = %q, want %q", body, want)
	}
}

func TestRenderStaticLyricsDuetAlternates(t *testing.T) {
	ks := NewKaraokeSystem()
	a, b := snowflake.ID(111), snowflake.ID(222)
	sess := newTestSession(t, ks, a, b)

	if sess.Mode != ModeDuet {
		t.Fatalf("mode = %v, want ModeDuet", sess.Mode)
	}

	lines := strings.Split(sess.StaticLyrics(), "\n")
	// Four kept lines plus one verse-break separator.
	if len(lines) != 5 {
		t.Fatalf("rendered line count = %d, want 5: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "<@111>") || !strings.Contains(lines[1], "<@222>") {
		t.Errorf("first two lines not alternating: %q, %q", lines[0], lines[1])
	}
	if lines[2] != "" {
		t.Errorf("expected verse-break separator at index 2, got %q", lines[2])
	}
	// The separator must not flip the alternation: line three stays with A.
	if !strings.Contains(lines[3], "<@111>") || !strings.Contains(lines[4], "<@222>") {
		t.Errorf("alternation broken after separator: %q, %q", lines[3], lines[4])
	}
}

func TestAssignedParticipantWraps(t *testing.T) {
	ks := NewKaraokeSystem()
	a, b := snowflake.ID(111), snowflake.ID(222)
	sess := newTestSession(t, ks, a, b)

	want := []snowflake.ID{a, b, a, b}
	for i, w := range want {
		if got := sess.AssignedParticipant(i); got != w {
			t.Errorf("AssignedParticipant(%d) = %s, want %s", i, got, w)
		}
	}
}

func TestCreateRejectsSecondSession(t *testing.T) {
	ks := NewKaraokeSystem()
	first := newTestSession(t, ks)

	_, err := ks.Create(first.GuildID, first.ChannelID, testSong(100), testLines(), []snowflake.ID{333})
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Create() error = %v, want ErrAlreadyActive", err)
	}
	if got := ks.Session(first.GuildID); got != first {
		t.Errorf("existing session replaced by failed Create()")
	}
	if first.State() != StateCreated {
		t.Errorf("existing session state = %v, want StateCreated", first.State())
	}
}

func TestTickDecileDebounce(t *testing.T) {
	ks := NewKaraokeSystem()
	sess := newTestSession(t, ks)
	r := &fakeRenderer{}
	sess.SetRenderer(r)

	start := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	sess.Activate(start)

	// Several ticks within the same decile render once.
	for _, off := range []time.Duration{0, 2 * time.Second, 5 * time.Second, 9 * time.Second} {
		sess.Tick(start.Add(off))
	}
	if r.calls != 1 {
		t.Fatalf("renders within first decile = %d, want 1", r.calls)
	}

	sess.Tick(start.Add(10 * time.Second))
	if r.calls != 2 {
		t.Errorf("renders after crossing decile = %d, want 2", r.calls)
	}
	if r.lastProg != 0.1 {
		t.Errorf("last rendered progress = %v, want 0.1", r.lastProg)
	}

	// Jumping several deciles still yields a single render.
	sess.Tick(start.Add(55 * time.Second))
	if r.calls != 3 {
		t.Errorf("renders after jump to T+55 = %d, want 3", r.calls)
	}
}

func TestTickIgnoredBeforeActivation(t *testing.T) {
	ks := NewKaraokeSystem()
	sess := newTestSession(t, ks)
	r := &fakeRenderer{}
	sess.SetRenderer(r)

	sess.Tick(time.Now())
	if r.calls != 0 {
		t.Errorf("renders before activation = %d, want 0", r.calls)
	}
	if sess.State() != StateCreated {
		t.Errorf("state after early tick = %v, want StateCreated", sess.State())
	}
}

func TestRenderFailureIsNonFatal(t *testing.T) {
	ks := NewKaraokeSystem()
	sess := newTestSession(t, ks)
	r := &fakeRenderer{failUntil: 1}
	sess.SetRenderer(r)

	start := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	sess.Activate(start)

	sess.Tick(start)
	if sess.State() != StateActive {
		t.Fatalf("state after failed render = %v, want StateActive", sess.State())
	}
	sess.Tick(start.Add(15 * time.Second))
	if r.calls != 2 {
		t.Errorf("renders = %d, want 2", r.calls)
	}
}

func TestCompletionEmittedOnce(t *testing.T) {
	ks := NewKaraokeSystem()
	a, b := snowflake.ID(111), snowflake.ID(222)
	sess := newTestSession(t, ks, a, b)
	sess.SetRenderer(&fakeRenderer{})

	start := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	sess.Activate(start)

	sess.Tick(start.Add(150 * time.Second))
	sess.Tick(start.Add(160 * time.Second))
	sess.Complete()

	if sess.State() != StateCompleted {
		t.Fatalf("state = %v, want StateCompleted", sess.State())
	}
	if got := ks.Session(sess.GuildID); got != nil {
		t.Errorf("completed session still registered")
	}

	select {
	case c := <-ks.Completions():
		if c.SongID != "test_song" || !c.Duet || len(c.Participants) != 2 {
			t.Errorf("completion = %+v", c)
		}
		if c.GuildID != sess.GuildID || c.ChannelID != sess.ChannelID {
			t.Errorf("completion routing = %+v", c)
		}
	default:
		t.Fatal("no completion event emitted")
	}

	select {
	case c := <-ks.Completions():
		t.Fatalf("duplicate completion event: %+v", c)
	default:
	}
}

func TestStopEmitsNoCompletion(t *testing.T) {
	ks := NewKaraokeSystem()
	sess := newTestSession(t, ks)
	sess.Activate(time.Now())

	sess.Stop()
	if sess.State() != StateStopped {
		t.Fatalf("state = %v, want StateStopped", sess.State())
	}
	if ks.Session(sess.GuildID) != nil {
		t.Errorf("stopped session still registered")
	}
	select {
	case c := <-ks.Completions():
		t.Fatalf("stop emitted completion: %+v", c)
	default:
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	ks := NewKaraokeSystem()
	sess := newTestSession(t, ks)
	sess.Activate(time.Now())
	sess.Stop()

	sess.Activate(time.Now())
	if sess.State() != StateStopped {
		t.Errorf("Activate after Stop changed state to %v", sess.State())
	}
	sess.Complete()
	if sess.State() != StateStopped {
		t.Errorf("Complete after Stop changed state to %v", sess.State())
	}
	sess.Fail(errors.New("late failure"))
	if sess.State() != StateStopped {
		t.Errorf("Fail after Stop changed state to %v", sess.State())
	}
}

func TestFailedSetupAllowsRetry(t *testing.T) {
	ks := NewKaraokeSystem()
	sess := newTestSession(t, ks)

	sess.MarkAudioStarting()
	if sess.State() != StateAudioStarting {
		t.Fatalf("state = %v, want StateAudioStarting", sess.State())
	}
	sess.Fail(errors.New("no audio source"))
	if sess.State() != StateFailed {
		t.Fatalf("state = %v, want StateFailed", sess.State())
	}

	retry, err := ks.Create(sess.GuildID, sess.ChannelID, testSong(100), testLines(), []snowflake.ID{111})
	if err != nil {
		t.Fatalf("retry Create() after failure = %v", err)
	}
	if retry.State() != StateCreated {
		t.Errorf("retry state = %v, want StateCreated", retry.State())
	}

	select {
	case c := <-ks.Completions():
		t.Fatalf("failure emitted completion: %+v", c)
	default:
	}
}

func TestKaraokeHeaderClock(t *testing.T) {
	h := karaokeHeader(testSong(214), 0.5)
	if !strings.Contains(h, "1:47 / 3:34") {
		t.Errorf("header clock missing: %q", h)
	}
	if !strings.Contains(h, strings.Repeat("█", 10)+strings.Repeat("░", 10)) {
		t.Errorf("header bar wrong: %q", h)
	}
}
