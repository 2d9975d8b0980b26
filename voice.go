package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)

	OnClientReady(func(ctx context.Context, client *bot.Client) {
		RegisterDaemon(LogVoice, func(ctx context.Context) (bool, func(), func()) {
			return true, func() {}, func() {
				if AudioManager != nil {
					LogVoice("Shutting down audio manager...")
					AudioManager.Shutdown(context.Background())
				}
			}
		})
	})
}

// ErrNoAudioSource is returned when no playable stream can be found for a song.
var ErrNoAudioSource = errors.New("no audio source found")

const voiceJoinAttempts = 5

// ===========================
// Audio Manager
// ===========================

// AudioSystem owns the voice connections used for karaoke playback, one
// session per guild.
type AudioSystem struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*AudioSession
}

var (
	AudioManager *AudioSystem
	OnceAudio    sync.Once
)

// GetAudioManager returns the singleton AudioSystem instance
func GetAudioManager() *AudioSystem {
	OnceAudio.Do(func() {
		AudioManager = &AudioSystem{sessions: make(map[snowflake.ID]*AudioSession)}
	})
	return AudioManager
}

// GetSession retrieves the audio session for a guild
func (as *AudioSystem) GetSession(guildID snowflake.ID) *AudioSession {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.sessions[guildID]
}

func (as *AudioSystem) prepare(client *bot.Client, guildID, channelID snowflake.ID) *AudioSession {
	as.mu.Lock()
	defer as.mu.Unlock()
	if sess, ok := as.sessions[guildID]; ok {
		if sess.ChannelID == channelID {
			return sess
		}
		clearVoiceStatus(client, sess.ChannelID)
		sess.Stop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &AudioSession{
		GuildID:    guildID,
		ChannelID:  channelID,
		Conn:       client.VoiceManager.CreateConn(guildID),
		client:     client,
		cancelCtx:  ctx,
		cancelFunc: cancel,
	}
	as.sessions[guildID] = sess
	return sess
}

// Connect opens a gateway voice connection, retrying with backoff since
// voice server allocation is flaky right after a gateway resume.
func (as *AudioSystem) Connect(ctx context.Context, client *bot.Client, guildID, channelID snowflake.ID) error {
	LogVoice("Joining channel %s in guild %s", channelID, guildID)
	sess := as.prepare(client, guildID, channelID)
	if sess.joined.Load() {
		return nil
	}

	var err error
	for attempt := 1; attempt <= voiceJoinAttempts; attempt++ {
		if err = sess.Conn.Open(ctx, channelID, false, false); err == nil {
			sess.joined.Store(true)
			return nil
		}
		LogVoice("Voice connect attempt %d/%d failed in guild %s: %v", attempt, voiceJoinAttempts, guildID, err)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			attempt = voiceJoinAttempts
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}

	clearVoiceStatus(client, channelID)
	sess.Conn.Close(ctx)
	as.mu.Lock()
	delete(as.sessions, guildID)
	as.mu.Unlock()
	sess.cancelFunc()
	return err
}

// Leave disconnects the bot from a guild's voice channel
func (as *AudioSystem) Leave(ctx context.Context, guildID snowflake.ID) {
	as.mu.Lock()
	sess, ok := as.sessions[guildID]
	if !ok {
		as.mu.Unlock()
		return
	}
	delete(as.sessions, guildID)
	as.mu.Unlock()

	clearVoiceStatus(sess.client, sess.ChannelID)
	sess.Stop()
	if sess.Conn != nil {
		sess.Conn.Close(ctx)
	}
}

// Shutdown gracefully stops all audio sessions and clears their status
func (as *AudioSystem) Shutdown(ctx context.Context) {
	as.mu.Lock()
	defer as.mu.Unlock()

	var wg sync.WaitGroup
	for id, sess := range as.sessions {
		wg.Add(1)
		go func(s *AudioSession) {
			defer wg.Done()
			clearVoiceStatus(s.client, s.ChannelID)
			s.Stop()
			if s.Conn != nil {
				s.Conn.Close(ctx)
			}
		}(sess)
		delete(as.sessions, id)
	}
	wg.Wait()
}

// clearVoiceStatus wipes the voice channel status line
func clearVoiceStatus(client *bot.Client, channelID snowflake.ID) {
	if client == nil {
		return
	}
	route := rest.NewEndpoint(http.MethodPut, "/channels/"+channelID.String()+"/voice-status")
	_ = client.Rest.Do(route.Compile(nil), map[string]string{"status": ""}, nil)
}

// SetStatus writes the guild's voice channel status line
func (as *AudioSystem) SetStatus(guildID snowflake.ID, status string) {
	sess := as.GetSession(guildID)
	if sess == nil {
		return
	}
	if len([]rune(status)) > 128 {
		status = TruncateCenter(status, 128)
	}
	route := rest.NewEndpoint(http.MethodPut, "/channels/"+sess.ChannelID.String()+"/voice-status")
	if err := sess.client.Rest.Do(route.Compile(nil), map[string]string{"status": status}, nil); err != nil {
		LogVoice("Failed to update status for %s: %v", sess.ChannelID, err)
	}
}

// ===========================
// Audio Session
// ===========================

// AudioSession is one guild's voice connection and the stream feeding it.
type AudioSession struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	Conn      voice.Conn

	client     *bot.Client
	joined     atomic.Bool
	mu         sync.Mutex
	provider   *OpusStreamProvider
	streamStop context.CancelFunc
	cancelCtx  context.Context
	cancelFunc context.CancelFunc
}

// Stop tears down the current stream and silences the connection.
func (s *AudioSession) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.mu.Lock()
	stop := s.streamStop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	if s.Conn != nil {
		s.setOpusFrameProviderSafe(nil)
		_ = s.Conn.SetSpeaking(context.TODO(), 0)
	}
}

// setOpusFrameProviderSafe sets the opus frame provider, recovering from
// panics when the underlying UDP connection is already gone.
func (s *AudioSession) setOpusFrameProviderSafe(provider voice.OpusFrameProvider) {
	if s.Conn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			LogVoice("Recovered from panic in SetOpusFrameProvider: %v", r)
		}
	}()
	s.Conn.SetOpusFrameProvider(provider)
}

// PlayStream pipes a single remote track through the transcoder into the
// voice connection. onStarted fires once frames begin flowing; onFinished
// fires exactly once when the stream ends, with a nil error on a clean
// run to completion.
func (as *AudioSystem) PlayStream(guildID snowflake.ID, url string, onStarted func(time.Time), onFinished func(error)) error {
	sess := as.GetSession(guildID)
	if sess == nil || !sess.joined.Load() {
		return errors.New("no joined voice session for guild " + guildID.String())
	}

	ctx, cancel := context.WithCancel(sess.cancelCtx)
	sess.mu.Lock()
	if sess.streamStop != nil {
		sess.streamStop()
	}
	sess.streamStop = cancel
	sess.mu.Unlock()

	p := NewOpusStreamProvider(sess)
	var streamErr error
	var errMu sync.Mutex
	p.OnFinish = func() {
		errMu.Lock()
		err := streamErr
		errMu.Unlock()
		if onFinished != nil {
			onFinished(err)
		}
	}

	setErr := func(err error) {
		errMu.Lock()
		if streamErr == nil {
			streamErr = err
		}
		errMu.Unlock()
	}

	pr, pw := io.Pipe()
	safeGo(func() {
		defer pw.Close()
		if _, err := ytdlpStream(ctx, url, pw); err != nil {
			setErr(err)
		}
	})

	safeGo(func() {
		defer cancel()
		defer pr.Close()
		defer p.PushFrame(nil)
		t := NewOpusTranscoder()
		defer t.Close()
		if err := t.OpenInput("", pr); err != nil {
			LogVoice("Transcoder OpenInput failed: %v", err)
			setErr(err)
			return
		}
		if err := t.SetupDecoder(); err != nil {
			LogVoice("Transcoder SetupDecoder failed: %v", err)
			setErr(err)
			return
		}
		if err := t.SetupEncoder(); err != nil {
			LogVoice("Transcoder SetupEncoder failed: %v", err)
			setErr(err)
			return
		}
		if err := t.Transcode(ctx, p.PushFrame); err != nil && !errors.Is(err, context.Canceled) {
			LogVoice("Transcoder finished for %s: %v", url, err)
		}
	})

	sess.mu.Lock()
	sess.provider = p
	sess.mu.Unlock()

	sess.setOpusFrameProviderSafe(p)
	_ = sess.Conn.SetSpeaking(context.TODO(), voice.SpeakingFlagMicrophone)
	if onStarted != nil {
		onStarted(time.Now())
	}
	return nil
}

// ===========================
// Opus Stream Provider
// ===========================

// OpusStreamProvider bridges the transcoder goroutine and the voice send
// loop with a bounded frame channel.
type OpusStreamProvider struct {
	frames   chan []byte
	OnFinish func()
	once     sync.Once
	sess     *AudioSession
}

func NewOpusStreamProvider(s *AudioSession) *OpusStreamProvider {
	return &OpusStreamProvider{frames: make(chan []byte, 100), sess: s}
}

func (p *OpusStreamProvider) Close() {
	p.once.Do(func() {
		if p.OnFinish != nil {
			p.OnFinish()
		}
	})
}

func (p *OpusStreamProvider) PushFrame(f []byte) {
	select {
	case p.frames <- f:
	case <-p.sess.cancelCtx.Done():
	}
}

func (p *OpusStreamProvider) ProvideOpusFrame() ([]byte, error) {
	select {
	case f := <-p.frames:
		if f == nil {
			p.Close()
			return nil, io.EOF
		}
		return f, nil
	case <-p.sess.cancelCtx.Done():
		p.Close()
		return nil, io.EOF
	case <-time.After(100 * time.Millisecond):
		return nil, nil // Silence
	}
}

// ===========================
// Transcoder
// ===========================

// OpusTranscoder decodes an arbitrary audio container and re-encodes it
// as 48kHz stereo opus in 20ms frames.
type OpusTranscoder struct {
	inputCtx               *astiav.FormatContext
	decoderCtx, encoderCtx *astiav.CodecContext
	audioStreamIndex       int
	packet                 *astiav.Packet
	frame                  *astiav.Frame
	resampleCtx            *astiav.SoftwareResampleContext
	resampleFrame          *astiav.Frame
	fifo                   *astiav.AudioFifo
	reader                 io.Reader
	onFrame                func([]byte)
	pts                    int64
}

func NewOpusTranscoder() *OpusTranscoder {
	return &OpusTranscoder{packet: astiav.AllocPacket(), frame: astiav.AllocFrame(), resampleFrame: astiav.AllocFrame()}
}

func (t *OpusTranscoder) OpenInput(in string, r io.Reader) error {
	t.inputCtx = astiav.AllocFormatContext()
	if t.inputCtx == nil {
		return errors.New("failed to alloc ctx")
	}
	if r != nil {
		t.reader = r
		seekFunc := func(offset int64, whence int) (int64, error) {
			return 0, errors.New("seek not supported")
		}
		if s, ok := r.(io.Seeker); ok {
			seekFunc = s.Seek
		}

		ioCtx, err := astiav.AllocIOContext(16*1024, false, func(b []byte) (int, error) {
			return t.reader.Read(b)
		}, seekFunc, nil)
		if err != nil {
			return err
		}
		t.inputCtx.SetPb(ioCtx)
		t.inputCtx.SetFlags(t.inputCtx.Flags().Add(astiav.FormatContextFlagCustomIo))

		opts := astiav.NewDictionary()
		defer opts.Free()
		opts.Set("probesize", "10000000", 0)
		opts.Set("analyzeduration", "10000000", 0)

		if err := t.inputCtx.OpenInput("", nil, opts); err != nil {
			return err
		}
	} else {
		var opts *astiav.Dictionary
		if strings.HasPrefix(in, "http") {
			opts = astiav.NewDictionary()
			defer opts.Free()
			opts.Set("reconnect", "1", 0)
			opts.Set("reconnect_at_eof", "1", 0)
			opts.Set("reconnect_streamed", "1", 0)
			opts.Set("reconnect_delay_max", "30", 0)
			opts.Set("timeout", "30000000", 0)
		}
		if err := t.inputCtx.OpenInput(in, nil, opts); err != nil {
			return err
		}
	}
	if err := t.inputCtx.FindStreamInfo(nil); err != nil {
		return err
	}
	t.audioStreamIndex = -1
	for _, s := range t.inputCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.audioStreamIndex = s.Index()
			break
		}
	}
	if t.audioStreamIndex == -1 {
		return errors.New("no audio")
	}
	return nil
}

func (t *OpusTranscoder) SetupDecoder() error {
	p := t.inputCtx.Streams()[t.audioStreamIndex].CodecParameters()
	d := astiav.FindDecoder(p.CodecID())
	if d == nil {
		return errors.New("no decoder")
	}
	t.decoderCtx = astiav.AllocCodecContext(d)
	_ = p.ToCodecContext(t.decoderCtx)
	return t.decoderCtx.Open(d, nil)
}

func (t *OpusTranscoder) SetupEncoder() error {
	e := astiav.FindEncoderByName("libopus")
	if e == nil {
		e = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if e == nil {
		return errors.New("no encoder")
	}
	t.encoderCtx = astiav.AllocCodecContext(e)
	t.encoderCtx.SetBitRate(192000)
	t.encoderCtx.SetSampleRate(48000)
	t.encoderCtx.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoderCtx.SetSampleFormat(astiav.SampleFormatS16)
	t.encoderCtx.SetTimeBase(astiav.NewRational(1, 48000))
	o := astiav.NewDictionary()
	defer o.Free()
	o.Set("vbr", "on", 0)
	o.Set("compression_level", "10", 0)
	o.Set("frame_size", "20", 0)
	if err := t.encoderCtx.Open(e, o); err != nil {
		return err
	}
	// Resampler is configured lazily from the first decoded frame.
	t.resampleCtx = astiav.AllocSoftwareResampleContext()
	if t.resampleCtx == nil {
		return errors.New("failed to allocate resampler")
	}
	return nil
}

func (t *OpusTranscoder) Transcode(ctx context.Context, on func([]byte)) error {
	defer t.packet.Unref()
	t.onFrame = on
	defer func() {
		if t.onFrame != nil {
			t.onFrame(nil)
		}
	}()
	t.fifo = astiav.AllocAudioFifo(t.encoderCtx.SampleFormat(), t.encoderCtx.ChannelLayout().Channels(), 960*2)
	defer func() {
		if t.fifo != nil {
			t.fifo.Free()
			t.fifo = nil
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := t.inputCtx.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return err
		}
		if t.packet.StreamIndex() != t.audioStreamIndex {
			t.packet.Unref()
			continue
		}
		if err := t.decoderCtx.SendPacket(t.packet); err != nil {
			t.packet.Unref()
			return err
		}
		t.packet.Unref()
		for {
			if err := t.decoderCtx.ReceiveFrame(t.frame); err != nil {
				break
			}
			t.resampleFrame.Unref()
			t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
			t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
			t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
			nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()), astiav.NewRational(1, t.frame.SampleRate()), astiav.NewRational(1, t.encoderCtx.SampleRate())))
			if nb > 0 {
				t.resampleFrame.SetNbSamples(nb)
				_ = t.resampleFrame.AllocBuffer(0)
				_ = t.resampleCtx.ConvertFrame(t.frame, t.resampleFrame)
				_, _ = t.fifo.Write(t.resampleFrame)
				for t.fifo.Size() >= 960 {
					t.resampleFrame.Unref()
					t.resampleFrame.SetNbSamples(960)
					t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
					t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
					t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
					_ = t.resampleFrame.AllocBuffer(0)
					_, _ = t.fifo.Read(t.resampleFrame)
					t.resampleFrame.SetPts(atomic.LoadInt64(&t.pts))
					atomic.AddInt64(&t.pts, 960)
					_ = t.encodeAndWrite(t.resampleFrame)
				}
			}
			t.frame.Unref()
		}
	}

	// Flush decoder
	if t.decoderCtx != nil {
		_ = t.decoderCtx.SendPacket(nil)
		for {
			if err := t.decoderCtx.ReceiveFrame(t.frame); err != nil {
				break
			}
			t.resampleFrame.Unref()
			t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
			t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
			t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
			nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()), astiav.NewRational(1, t.frame.SampleRate()), astiav.NewRational(1, t.encoderCtx.SampleRate())))
			if nb > 0 {
				t.resampleFrame.SetNbSamples(nb)
				_ = t.resampleFrame.AllocBuffer(0)
				if t.resampleCtx.ConvertFrame(t.frame, t.resampleFrame) == nil {
					_, _ = t.fifo.Write(t.resampleFrame)
				}
			}
			t.frame.Unref()
		}
	}

	// Drain FIFO remainder
	if t.fifo != nil {
		for t.fifo.Size() > 0 {
			t.resampleFrame.Unref()
			sz := 960
			if t.fifo.Size() < sz {
				sz = t.fifo.Size()
			}
			t.resampleFrame.SetNbSamples(sz)
			t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
			t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
			t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
			_ = t.resampleFrame.AllocBuffer(0)
			_, _ = t.fifo.Read(t.resampleFrame)
			t.resampleFrame.SetPts(atomic.LoadInt64(&t.pts))
			atomic.AddInt64(&t.pts, int64(sz))
			_ = t.encodeAndWrite(t.resampleFrame)
		}
	}

	// Flush encoder
	if t.encoderCtx != nil {
		_ = t.encoderCtx.SendFrame(nil)
		for {
			p := astiav.AllocPacket()
			if t.encoderCtx.ReceivePacket(p) != nil {
				p.Free()
				break
			}
			if t.onFrame != nil {
				d := p.Data()
				fd := make([]byte, len(d))
				copy(fd, d)
				t.onFrame(fd)
			}
			p.Free()
		}
	}
	return nil
}

func (t *OpusTranscoder) encodeAndWrite(f *astiav.Frame) error {
	if err := t.encoderCtx.SendFrame(f); err != nil {
		return err
	}
	for {
		p := astiav.AllocPacket()
		if t.encoderCtx.ReceivePacket(p) != nil {
			p.Free()
			break
		}
		if t.onFrame != nil {
			d := p.Data()
			fd := make([]byte, len(d))
			copy(fd, d)
			t.onFrame(fd)
		}
		p.Free()
	}
	return nil
}

func (t *OpusTranscoder) Close() {
	if t.resampleCtx != nil {
		t.resampleCtx.Free()
	}
	if t.resampleFrame != nil {
		t.resampleFrame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.decoderCtx != nil {
		t.decoderCtx.Free()
	}
	if t.encoderCtx != nil {
		t.encoderCtx.Free()
	}
	if t.inputCtx != nil {
		t.inputCtx.CloseInput()
		t.inputCtx.Free()
	}
}

// ===========================
// Source Resolution
// ===========================

// ResolveAudioSource finds a playable URL for a song. YouTube Music and
// YouTube search run in parallel; yt-dlp is the slow fallback. Candidates
// whose duration strays too far from the registry duration are rejected.
func (as *AudioSystem) ResolveAudioSource(ctx context.Context, song KaraokeSong) (string, error) {
	query := song.Title + " " + song.Artist

	searchCtx, cancel := context.WithTimeout(ctx, 2600*time.Millisecond)
	defer cancel()

	resMu := sync.Mutex{}
	var ytm, yt []string
	seen := make(map[string]bool)
	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		s := ytmusic.TrackSearch(query)
		r, _ := s.Next()
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				ytm = append(ytm, "https://music.youtube.com/watch?v="+v.VideoID)
			}
			resMu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		c := ytsearch.NewClient(nil)
		r, _ := c.Search(searchCtx, query)
		for _, v := range r.Results {
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				yt = append(yt, "https://www.youtube.com/watch?v="+v.VideoID)
			}
			resMu.Unlock()
		}
	}()
	d := make(chan struct{})
	go func() {
		wg.Wait()
		close(d)
	}()
	select {
	case <-d:
	case <-time.After(2300 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	resMu.Lock()
	candidates := append(append([]string(nil), ytm...), yt...)
	resMu.Unlock()

	if len(candidates) > 0 {
		LogVoice("Resolved %q to %s (%d candidates)", query, candidates[0], len(candidates))
		return candidates[0], nil
	}

	results, err := ytdlpSearch(ctx, query, 3)
	if err != nil {
		LogVoice("yt-dlp search failed for %q: %v", query, err)
		return "", fmt.Errorf("%w: %s", ErrNoAudioSource, song.ID)
	}
	best := selectBestDuration(results, time.Duration(song.Duration)*time.Second)
	if best == nil {
		return "", fmt.Errorf("%w: %s", ErrNoAudioSource, song.ID)
	}
	LogVoice("Resolved %q via yt-dlp to %s", query, best.URL)
	return best.URL, nil
}

// selectBestDuration prefers the candidate closest to the expected track
// length, rejecting anything more than 25% off.
func selectBestDuration(results []ytdlpSearchResult, target time.Duration) *ytdlpSearchResult {
	var best *ytdlpSearchResult
	var bestDiff time.Duration
	for i := range results {
		r := &results[i]
		if r.URL == "" {
			continue
		}
		if target <= 0 || r.Duration <= 0 {
			if best == nil {
				best = r
			}
			continue
		}
		diff := r.Duration - target
		if diff < 0 {
			diff = -diff
		}
		if diff > target/4 {
			continue
		}
		if best == nil || diff < bestDiff {
			best = r
			bestDiff = diff
		}
	}
	return best
}

// ===========================
// YT-DLP
// ===========================

type ytdlpSearchResult struct {
	URL, Title, Uploader string
	Duration             time.Duration
}

func ytdlpSearch(ctx context.Context, q string, m int) ([]ytdlpSearchResult, error) {
	res, err := ytdlp.New().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", m)).
		NoWarnings().
		IgnoreConfig().
		PreferFreeFormats().
		Run(ctx, fmt.Sprintf("ytsearch%d:%s", m, q))

	if err != nil {
		return nil, err
	}
	ls := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	rs := make([]ytdlpSearchResult, 0, len(ls))
	for _, l := range ls {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 {
			continue
		}
		d, _ := time.ParseDuration(ps[3] + "s")
		rs = append(rs, ytdlpSearchResult{URL: ps[0], Title: ps[1], Uploader: ps[2], Duration: d})
	}
	return rs, nil
}

func ytdlpStream(ctx context.Context, u string, out io.Writer) (bool, error) {
	cmd := ytdlp.New().
		Format("bestaudio[ext=webm]/bestaudio").
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		BuildCommand(ctx, u)

	cmd.Stdout = out
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	cmd.WaitDelay = 0 // Wait indefinitely for I/O to flush after process exit
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return false, err
	}

	if err := cmd.Wait(); err != nil {
		// Broken pipes are normal when the transcoder finishes reading first.
		msg := strings.ToLower(stderr.String())
		if strings.Contains(err.Error(), "exit status 1") || strings.Contains(msg, "broken pipe") {
			return true, nil
		}
		LogVoice("yt-dlp exited with error: %v, stderr: %s", err, stderr.String())
		return false, err
	}

	return true, nil
}
