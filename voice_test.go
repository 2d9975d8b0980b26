package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

func newTestAudioSession(guildID snowflake.ID) *AudioSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &AudioSession{GuildID: guildID, cancelCtx: ctx, cancelFunc: cancel}
}

func TestLeaveDropsSessionForRetry(t *testing.T) {
	as := &AudioSystem{sessions: make(map[snowflake.ID]*AudioSession)}
	guildID := snowflake.ID(42)
	sess := newTestAudioSession(guildID)
	sess.joined.Store(true)
	as.sessions[guildID] = sess

	as.Leave(context.Background(), guildID)

	if got := as.GetSession(guildID); got != nil {
		t.Fatalf("GetSession after Leave = %v, want nil", got)
	}
	select {
	case <-sess.cancelCtx.Done():
	default:
		t.Error("session context still live after Leave")
	}
}

func TestLeaveUnblocksFrameProducer(t *testing.T) {
	as := &AudioSystem{sessions: make(map[snowflake.ID]*AudioSession)}
	guildID := snowflake.ID(42)
	sess := newTestAudioSession(guildID)
	as.sessions[guildID] = sess

	p := NewOpusStreamProvider(sess)
	for i := 0; i < cap(p.frames); i++ {
		p.PushFrame([]byte{0xF8})
	}

	pushed := make(chan struct{})
	go func() {
		p.PushFrame([]byte{0xF8})
		close(pushed)
	}()

	as.Leave(context.Background(), guildID)

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("PushFrame still blocked after Leave")
	}

	sawEOF := false
	for i := 0; i < cap(p.frames)+2; i++ {
		if _, err := p.ProvideOpusFrame(); err == io.EOF {
			sawEOF = true
			break
		}
	}
	if !sawEOF {
		t.Error("provider never reached EOF after Leave")
	}
}

func TestLeaveWithoutSessionIsNoop(t *testing.T) {
	as := &AudioSystem{sessions: make(map[snowflake.ID]*AudioSession)}
	as.Leave(context.Background(), snowflake.ID(1))
}
