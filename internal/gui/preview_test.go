package gui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/timeline"
)

func TestFormatClock(t *testing.T) {
	tests := map[float64]string{
		0:      "0:00.0",
		1.25:   "0:01.2",
		59.95:  "0:59.9",
		61.5:   "1:01.5",
		600.09: "10:00.0",
		-3:     "0:00.0",
	}
	for in, want := range tests {
		if got := formatClock(in); got != want {
			t.Errorf("formatClock(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestAppendTarget(t *testing.T) {
	state := timeline.New()
	state, err := timeline.InsertClips(state, timeline.DefaultVideoTrackID, []timeline.Clip{
		{ID: "a", MediaID: "m", Duration: 4},
		{ID: "b", MediaID: "m", StartTime: 6, Duration: 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	track, at, ok := appendTarget(state, media.KindVideo)
	if !ok || track != timeline.DefaultVideoTrackID || at != 8 {
		t.Errorf("video target = %s@%v (%v)", track, at, ok)
	}
	track, at, ok = appendTarget(state, media.KindAudio)
	if !ok || track != timeline.DefaultAudioTrackID || at != 0 {
		t.Errorf("audio target = %s@%v (%v)", track, at, ok)
	}

	locked, err := timeline.SetLocked(state, timeline.DefaultAudioTrackID, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok := appendTarget(locked, media.KindAudio); ok {
		t.Error("locked track chosen")
	}
}

func TestSummarize(t *testing.T) {
	state, err := timeline.SetMuted(timeline.New(), timeline.DefaultAudioTrackID, true)
	if err != nil {
		t.Fatal(err)
	}
	got := summarize(state)
	if !strings.Contains(got, "Video: 0") || !strings.Contains(got, "Audio: 0 muted") || !strings.HasSuffix(got, "total 0:00.0") {
		t.Errorf("summary = %q", got)
	}
}

func TestExportJobCancel(t *testing.T) {
	var job exportJob
	job.Cancel()

	ctx, ok := job.Start(context.Background())
	if !ok {
		t.Fatal("first export refused")
	}
	if _, ok := job.Start(context.Background()); ok {
		t.Error("second export started while one is running")
	}

	job.Cancel()
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("ctx.Err() = %v after cancel", ctx.Err())
	}

	waited := make(chan struct{})
	go func() {
		job.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("Wait returned before the export finished")
	case <-time.After(20 * time.Millisecond):
	}

	job.Finish()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Finish")
	}
	if _, ok := job.Start(context.Background()); !ok {
		t.Error("export refused after the previous one finished")
	}
}
