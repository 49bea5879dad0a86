package renderd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kikiluvv/slopstudio/internal/export"
	"github.com/kikiluvv/slopstudio/internal/ffmpeg"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultMaxUpload = 2 << 30 // 2 GB

// Renderer runs a render job
type Renderer interface {
	RenderTimeline(ctx context.Context, job ffmpeg.TimelineJob, progressFunc ffmpeg.ProgressFunc) (*ffmpeg.Result, error)
}

// Server accepts render jobs over HTTP
type Server struct {
	logger    zerolog.Logger
	renderer  Renderer
	workDir   string
	maxUpload int64
}

// NewServer creates a render server. Uploads and outputs live under workDir
// (the system temp dir when empty) and are removed after each request.
func NewServer(logger zerolog.Logger, renderer Renderer, workDir string) *Server {
	return &Server{
		logger:    logger.With().Str("component", "renderd").Logger(),
		renderer:  renderer,
		workDir:   workDir,
		maxUpload: defaultMaxUpload,
	}
}

// Router returns the service routes
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/render", s.handleRender)
	return r
}

// Serve listens on addr until ctx is cancelled
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info().Str("address", addr).Msg("render service listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		s.logger.Info().Msg("shutting down render service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	log := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	dir, err := os.MkdirTemp(s.workDir, "job-*")
	if err != nil {
		log.Error().Err(err).Msg("create job dir")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	defer os.RemoveAll(dir)

	manifest, files, err := readUpload(r, dir)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := manifest.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("invalid manifest: "+err.Error()))
		return
	}

	job, err := BuildJob(manifest, files, filepath.Join(dir, "render.mp4"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
		return
	}

	log.Info().
		Int("segments", len(job.Segments)).
		Int("voices", len(job.Voices)).
		Float64("duration", job.Duration).
		Msg("render job accepted")

	res, err := s.renderer.RenderTimeline(r.Context(), job, func(p *ffmpeg.Progress) {
		log.Debug().Float64("percent", p.Percentage).Msg("render progress")
	})
	if err != nil {
		if r.Context().Err() != nil {
			log.Info().Msg("client went away, render cancelled")
			return
		}
		log.Error().Err(err).Msg("render failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("render failed"))
		return
	}

	f, err := os.Open(res.Path)
	if err != nil {
		log.Error().Err(err).Msg("open render output")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="render.mp4"`)
	w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	w.Header().Set(export.HeaderSize, strconv.FormatInt(res.Size, 10))
	w.Header().Set(export.HeaderDuration, strconv.FormatFloat(res.Duration.Seconds(), 'f', 3, 64))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Warn().Err(err).Msg("send render output")
	}
}

// readUpload streams the multipart body to dir. Asset files are named by
// upload order so client-chosen names never reach the filesystem.
func readUpload(r *http.Request, dir string) (export.Manifest, map[string]string, error) {
	var manifest export.Manifest
	files := make(map[string]string)

	mr, err := r.MultipartReader()
	if err != nil {
		return manifest, nil, fmt.Errorf("expected multipart body: %w", err)
	}

	haveManifest := false
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return manifest, nil, fmt.Errorf("read upload: %w", err)
		}

		name := part.FormName()
		switch {
		case name == export.ManifestField:
			if err := json.NewDecoder(part).Decode(&manifest); err != nil {
				part.Close()
				return manifest, nil, fmt.Errorf("invalid manifest JSON: %w", err)
			}
			haveManifest = true
		case strings.HasPrefix(name, export.AssetFieldPrefix):
			id := strings.TrimPrefix(name, export.AssetFieldPrefix)
			path := filepath.Join(dir, fmt.Sprintf("asset-%03d%s", len(files), safeExt(part.FileName())))
			if err := saveFile(part, path); err != nil {
				part.Close()
				return manifest, nil, fmt.Errorf("save asset %s: %w", id, err)
			}
			files[id] = path
		default:
			_, _ = io.Copy(io.Discard, part)
		}
		part.Close()
	}

	if !haveManifest {
		return manifest, nil, fmt.Errorf("missing %q field", export.ManifestField)
	}
	return manifest, files, nil
}

func saveFile(src io.Reader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// safeExt keeps a short alphanumeric extension so ffmpeg can sniff the format
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
