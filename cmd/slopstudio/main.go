package main

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kikiluvv/slopstudio/internal/apperr"
	"github.com/kikiluvv/slopstudio/internal/config"
	"github.com/kikiluvv/slopstudio/internal/export"
	"github.com/kikiluvv/slopstudio/internal/gui"
	"github.com/kikiluvv/slopstudio/internal/logging"
	"github.com/kikiluvv/slopstudio/internal/renderd"
	"github.com/kikiluvv/slopstudio/internal/script"
	"github.com/kikiluvv/slopstudio/internal/studio"
	"github.com/kikiluvv/slopstudio/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile string
	verbose bool
	logJSON bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if apperr.Cancelled(err) {
			os.Exit(130)
		}
		log.Error().Err(err).Msg(apperr.Message(err))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "slopstudio",
	Short:         "slopstudio - multi-track timeline editor",
	Long:          "Place images, video and audio on tracks, preview them in real time and export a single MP4.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Setup(logging.Options{Out: os.Stderr, Verbose: verbose, JSON: logJSON})

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log JSON lines instead of console output")

	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

var previewCmd = &cobra.Command{
	Use:   "preview [edit script]",
	Short: "Open the preview window, optionally loading an edit script",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := newWorkspace(ctx)
		if err != nil {
			return err
		}

		var s *script.Script
		if len(args) == 1 {
			if s, err = script.Load(args[0]); err != nil {
				return err
			}
		}
		opts, err := w.exportOptions(s)
		if err != nil {
			return err
		}

		sess := w.session(opts.Preset.Scaled(w.cfg.Preview.Scale), opts.Background)
		remote, _ := cmd.Flags().GetString("remote")
		window := gui.New(log.Logger, sess, gui.Options{
			Title: "slopstudio",
			Export: func(ctx context.Context, snap studio.ExportSnapshot, progress export.ProgressFunc) (string, error) {
				res, err := w.render(ctx, snap.State, sess.Registry(), windowExport(opts, snap), w.remoteURL(remote), progress)
				if err != nil {
					return "", err
				}
				return res.Path, nil
			},
		})

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		done := startSession(ctx, sess)

		if s != nil {
			go func() {
				if _, err := s.Replay(ctx, sess); err != nil && !apperr.Cancelled(err) {
					log.Error().Err(err).Msg("edit script failed")
				}
			}()
		}

		window.Run(ctx)
		cancel()
		<-done
		return nil
	},
}

var renderCmd = &cobra.Command{
	Use:   "render [edit script]",
	Short: "Replay an edit script and export the timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := newWorkspace(ctx)
		if err != nil {
			return err
		}
		s, err := script.Load(args[0])
		if err != nil {
			return err
		}
		opts, err := w.exportOptions(s)
		if err != nil {
			return err
		}
		if out, _ := cmd.Flags().GetString("output"); out != "" {
			opts.Output = out
		}

		state, sess, stop, err := w.replay(ctx, s, opts)
		if err != nil {
			return err
		}
		defer stop()

		remote, _ := cmd.Flags().GetString("remote")
		res, err := w.render(ctx, state, sess.Registry(), opts, w.remoteURL(remote), progressLogger(log.Logger))
		if err != nil {
			return err
		}

		log.Info().
			Str("output", res.Path).
			Int64("size", res.Size).
			Str("duration", util.FormatTimestamp(res.Duration.Seconds())).
			Msg("render complete")
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [edit script]",
	Short: "Replay an edit script and save the preview frame at a time as PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := newWorkspace(ctx)
		if err != nil {
			return err
		}
		s, err := script.Load(args[0])
		if err != nil {
			return err
		}
		opts, err := w.exportOptions(s)
		if err != nil {
			return err
		}

		atFlag, _ := cmd.Flags().GetString("at")
		at, err := util.ParseTimestamp(atFlag)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("output")

		_, sess, stop, err := w.replay(ctx, s, opts)
		if err != nil {
			return err
		}
		defer stop()

		if err := sess.Seek(ctx, at); err != nil {
			return err
		}
		frame, err := sess.Frame(ctx)
		if err != nil {
			return err
		}

		if err := util.EnsureParent(out); err != nil {
			return err
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := png.Encode(f, frame); err != nil {
			f.Close()
			return fmt.Errorf("encode %s: %w", filepath.Base(out), err)
		}
		if err := f.Close(); err != nil {
			return err
		}

		log.Info().Str("output", out).Str("at", util.FormatTimestamp(at)).Msg("snapshot saved")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the render service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)
		w, err := newWorkspace(ctx)
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Renderd.Addr
		}
		if cfg.Renderd.WorkDir != "" {
			if err := util.EnsureDir(cfg.Renderd.WorkDir); err != nil {
				return err
			}
		}

		srv := renderd.NewServer(log.Logger, w.exec, cfg.Renderd.WorkDir)
		return srv.Serve(ctx, addr)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(config.FromContext(cmd.Context())); err != nil {
			return err
		}
		return enc.Close()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if util.FileExists(path) && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.FromContext(cmd.Context()).Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func init() {
	previewCmd.Flags().String("remote", "", "render service URL for exports (default: export.remote_url)")

	renderCmd.Flags().StringP("output", "o", "", "output file (default: script output.path or export.output_dir)")
	renderCmd.Flags().String("remote", "", "render on this service instead of locally (default: export.remote_url)")

	snapshotCmd.Flags().String("at", "0", "timeline position (seconds, MM:SS or HH:MM:SS.mmm)")
	snapshotCmd.Flags().StringP("output", "o", "snapshot.png", "output PNG")

	serveCmd.Flags().String("addr", "", "listen address (default: renderd.addr)")

	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
