package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kikiluvv/slopstudio/internal/ffmpeg"
	"github.com/kikiluvv/slopstudio/internal/media"
	"github.com/kikiluvv/slopstudio/internal/timeline"
	"github.com/rs/zerolog"
)

// RemoteRenderer exports by shipping the timeline and its assets to a render
// service and downloading the finished file.
type RemoteRenderer struct {
	logger  zerolog.Logger
	baseURL string
	assets  media.Lookup
	client  *http.Client
}

// NewRemoteRenderer creates a client for the render service at baseURL.
// A nil client uses http.DefaultClient.
func NewRemoteRenderer(logger zerolog.Logger, baseURL string, assets media.Lookup, client *http.Client) *RemoteRenderer {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteRenderer{
		logger:  logger.With().Str("component", "remote-render").Logger(),
		baseURL: strings.TrimRight(baseURL, "/"),
		assets:  assets,
		client:  client,
	}
}

// Render uploads state and writes the rendered video to opts.Output
func (r *RemoteRenderer) Render(ctx context.Context, state timeline.State, opts Options, progress ProgressFunc) (*ffmpeg.Result, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	if opts.Output == "" {
		return nil, &Error{Stage: StageValidate, Err: fmt.Errorf("output path is required")}
	}

	manifest, used := BuildManifest(state, r.assets, opts)
	if manifest.Duration <= 0 {
		return nil, &Error{Stage: StageValidate, Err: ErrEmptyTimeline}
	}
	if err := manifest.Validate(); err != nil {
		return nil, &Error{Stage: StageValidate, Err: err}
	}
	for _, a := range used {
		if a.Path == "" {
			return nil, &Error{Stage: StageValidate, Err: fmt.Errorf("asset %s has no source file", a.ID)}
		}
	}

	r.logger.Info().
		Str("url", r.baseURL).
		Int("assets", len(used)).
		Float64("duration", manifest.Duration).
		Msg("uploading render job")

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeJob(mw, manifest, used, func(done int) {
			progress(Progress{Stage: StageUpload, Frame: done, Frames: len(used), Percent: 100 * float64(done) / float64(max(1, len(used)))})
		}))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/render", pr)
	if err != nil {
		return nil, &Error{Stage: StageUpload, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fail(ctx, StageUpload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Stage: StageRender, Err: remoteError(resp)}
	}
	progress(Progress{Stage: StageRender, Percent: 100})

	res, err := r.download(resp, opts.Output)
	if err != nil {
		return nil, fail(ctx, StageDownload, err)
	}
	progress(Progress{Stage: StageDownload, Percent: 100})

	r.logger.Info().Str("output", res.Path).Int64("size", res.Size).Dur("duration", res.Duration).Msg("remote render completed")
	return res, nil
}

// writeJob streams the manifest and every asset file as multipart parts
func writeJob(mw *multipart.Writer, manifest Manifest, assets []*media.Asset, uploaded func(int)) error {
	part, err := mw.CreateFormField(ManifestField)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(part).Encode(manifest); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	for i, a := range assets {
		if err := writeAsset(mw, a); err != nil {
			return err
		}
		uploaded(i + 1)
	}
	return mw.Close()
}

func writeAsset(mw *multipart.Writer, a *media.Asset) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open asset %s: %w", a.ID, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(AssetFieldPrefix+a.ID, filepath.Base(a.Path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("upload asset %s: %w", a.ID, err)
	}
	return nil
}

// download writes the response body next to output and renames it in place
func (r *RemoteRenderer) download(resp *http.Response, output string) (*ffmpeg.Result, error) {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(output), ".render-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("download render: %w", err)
	}
	if want, perr := strconv.ParseInt(resp.Header.Get(HeaderSize), 10, 64); perr == nil && want != n {
		return nil, fmt.Errorf("download render: got %d of %d bytes", n, want)
	}
	if err := os.Rename(tmp.Name(), output); err != nil {
		return nil, err
	}

	res := &ffmpeg.Result{Path: output, Size: n}
	if secs, err := strconv.ParseFloat(resp.Header.Get(HeaderDuration), 64); err == nil {
		res.Duration = time.Duration(secs * float64(time.Second))
	}
	return res, nil
}

// remoteError reads the service's JSON error body
func remoteError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("render service: %s (%d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("render service returned %s", resp.Status)
}
