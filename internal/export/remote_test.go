package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/timeline"
	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBuildManifestDropsMissingMedia(t *testing.T) {
	assets := assetMap{"img": {ID: "img", Kind: media.KindImage, DisplayName: "a.png", Path: "/a.png"}}
	state := stateWith(t, []timeline.Clip{
		{ID: "a", MediaID: "img", Duration: 2},
		{ID: "b", MediaID: "img", StartTime: 2, Duration: 2},
		{ID: "c", MediaID: "gone", StartTime: 4, Duration: 6},
	}, nil)

	m, used := BuildManifest(state, assets, Options{Preset: tiny, Background: black})
	if len(used) != 1 || len(m.Assets) != 1 {
		t.Fatalf("assets = %d, want the image once", len(m.Assets))
	}
	if m.Duration != 4 {
		t.Errorf("duration = %v, want 4 without the orphan clip", m.Duration)
	}
	if m.FPS != DefaultFPS || m.Background != "#000000" {
		t.Errorf("defaults not applied: fps=%v bg=%q", m.FPS, m.Background)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestManifestValidate(t *testing.T) {
	valid := Manifest{
		Width:      1920,
		Height:     1080,
		FPS:        30,
		Volume:     1,
		Background: "#000000",
		Duration:   5,
		Tracks:     []timeline.Track{{ID: "v", Kind: timeline.TrackVideo, Clips: []timeline.Clip{{ID: "c", MediaID: "m", Duration: 5}}}},
		Assets:     []ManifestAsset{{ID: "m", Kind: media.KindVideo, NaturalDuration: 5}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}

	tests := map[string]func(m *Manifest){
		"no width":      func(m *Manifest) { m.Width = 0 },
		"fps too high":  func(m *Manifest) { m.FPS = 500 },
		"volume":        func(m *Manifest) { m.Volume = 2 },
		"quality":       func(m *Manifest) { m.Quality = "ultra" },
		"empty":         func(m *Manifest) { m.Duration = 0 },
		"bad color":     func(m *Manifest) { m.Background = "red" },
		"unknown asset": func(m *Manifest) { m.Assets = []ManifestAsset{{ID: "x", Kind: media.KindVideo}} },
		"bad kind":      func(m *Manifest) { m.Assets[0].Kind = "pdf" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			m := valid
			m.Assets = append([]ManifestAsset(nil), valid.Assets...)
			mutate(&m)
			if err := m.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRemoteRenderUploadsAndDownloads(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeFile(t, dir, "still.png", "png-bytes")
	songPath := writeFile(t, dir, "song.mp3", "mp3-bytes")
	assets := assetMap{
		"img":  {ID: "img", Kind: media.KindImage, Path: imgPath},
		"song": {ID: "song", Kind: media.KindAudio, Path: songPath, NaturalDuration: 20},
	}
	state := stateWith(t,
		[]timeline.Clip{{ID: "v", MediaID: "img", Duration: 5}},
		[]timeline.Clip{{ID: "a", MediaID: "song", StartTime: 1, Duration: 3}},
	)

	var gotManifest Manifest
	gotFiles := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.Unmarshal([]byte(r.FormValue(ManifestField)), &gotManifest)
		for field, headers := range r.MultipartForm.File {
			f, _ := headers[0].Open()
			data, _ := io.ReadAll(f)
			f.Close()
			gotFiles[field] = string(data)
		}
		w.Header().Set(HeaderSize, "9")
		w.Header().Set(HeaderDuration, "5.000")
		_, _ = w.Write([]byte("rendered!"))
	}))
	defer srv.Close()

	r := NewRemoteRenderer(zerolog.New(io.Discard), srv.URL+"/", assets, srv.Client())
	out := filepath.Join(dir, "out", "final.mp4")
	var stages []Stage
	res, err := r.Render(context.Background(), state, Options{Preset: tiny, Output: out, Volume: 0.5}, func(p Progress) {
		stages = append(stages, p.Stage)
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if gotManifest.Duration != 5 || gotManifest.Width != tiny.Width || gotManifest.Volume != 0.5 {
		t.Errorf("manifest = %+v", gotManifest)
	}
	if gotFiles[AssetFieldPrefix+"img"] != "png-bytes" || gotFiles[AssetFieldPrefix+"song"] != "mp3-bytes" {
		t.Errorf("uploaded files = %v", gotFiles)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "rendered!" || res.Size != 9 || res.Duration != 5*time.Second {
		t.Errorf("result = %+v, body %q", res, data)
	}
	if len(stages) == 0 || stages[len(stages)-1] != StageDownload {
		t.Errorf("progress stages = %v", stages)
	}
}

func TestRemoteRenderServiceError(t *testing.T) {
	dir := t.TempDir()
	assets := assetMap{"img": {ID: "img", Kind: media.KindImage, Path: writeFile(t, dir, "a.png", "x")}}
	state := stateWith(t, []timeline.Clip{{ID: "v", MediaID: "img", Duration: 1}}, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"ffmpeg exploded"}`))
	}))
	defer srv.Close()

	r := NewRemoteRenderer(zerolog.New(io.Discard), srv.URL, assets, nil)
	out := filepath.Join(dir, "out.mp4")
	_, err := r.Render(context.Background(), state, Options{Preset: tiny, Output: out}, nil)

	var xerr *Error
	if !errors.As(err, &xerr) || xerr.Stage != StageRender {
		t.Fatalf("err = %v, want render stage failure", err)
	}
	if !strings.Contains(err.Error(), "ffmpeg exploded") {
		t.Errorf("service message lost: %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("no output should be written on failure")
	}
}
