// Command localtest runs the extraction pipeline against a local file or URL
// without Telegram or Redis.
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/wapuda/metanix/internal/config"
	"github.com/wapuda/metanix/internal/extract"
	"github.com/wapuda/metanix/internal/fetch"
	"github.com/wapuda/metanix/internal/ffmpeg"
	"github.com/wapuda/metanix/internal/jobs"
	"github.com/wapuda/metanix/internal/logx"
	"github.com/wapuda/metanix/internal/media"
	"github.com/wapuda/metanix/internal/worker"
)

func main() {
	_ = godotenv.Load()
	lc := logx.FromEnv("localtest")
	lc.Format = "console"
	logx.Setup(lc)

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type env struct {
	cfg    config.Config
	out    string
	tools  *ffmpeg.Runner
	dl     *fetch.Client
	stdout io.Writer
}

func rootCmd() *cobra.Command {
	e := &env{cfg: config.Load(), stdout: os.Stdout}
	root := &cobra.Command{
		Use:           "localtest",
		Short:         "Run MetaNiX media operations on a local file or URL",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(*cobra.Command, []string) {
			e.tools = ffmpeg.NewRunner(
				ffmpeg.WithBinaries(e.cfg.FFmpegPath, e.cfg.FFprobePath, e.cfg.MediaInfoPath),
				ffmpeg.WithTimeout(e.cfg.FFmpegTimeout),
			)
			e.dl = fetch.New(fetch.WithTimeout(e.cfg.FetchTimeout))
		},
	}
	root.PersistentFlags().StringVarP(&e.out, "out", "o", "./out", "Output directory")
	root.AddCommand(sampleCmd(e), trimCmd(e), screenshotsCmd(e), probeCmd(e))
	return root
}

func sampleCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "sample <input> <seconds>",
		Short:   "Cut a random sample",
		Example: "  localtest sample movie.mkv 30",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("seconds: %w", err)
			}
			return e.segment(cmd.Context(), args[0], extract.SampleRequest(n))
		},
	}
}

func trimCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "trim <input> <start> <end>",
		Short:   "Cut an explicit range",
		Example: "  localtest trim movie.mkv 00:01:00 00:02:30\n  localtest trim https://host/movie.mkv 400 500",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.segment(cmd.Context(), args[0], extract.RangeRequest(args[1], args[2]))
		},
	}
}

func screenshotsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "screenshots <input> <count>",
		Short: "Grab random screenshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			return e.screenshots(cmd.Context(), args[0], n)
		},
	}
}

func probeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <input>",
		Short: "Print ffprobe JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, raw, err := e.tools.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = e.stdout.Write(append(raw, '\n'))
			return err
		},
	}
}

func (e *env) segment(ctx context.Context, input string, req extract.Request) error {
	ws, err := extract.OpenWorkspace(e.out, jobs.NewRequestID(), 0)
	if err != nil {
		return err
	}
	defer ws.Close()

	ext := extract.New(e.tools, e.tools, e.dl,
		extract.WithAssumedDuration(e.cfg.AssumedDuration),
		extract.WithBytesPerSecond(e.cfg.BytesPerSecond),
		extract.WithPadding(e.cfg.Padding),
	)
	ref := media.Reference{Kind: media.KindDocument, DisplayName: filepath.Base(input)}
	obs := &barObserver{}
	defer obs.finish()

	res, err := ext.Run(ctx, extract.Job{
		Ref:       ref,
		Source:    &source{in: input, dl: e.dl},
		Request:   req,
		Workspace: ws,
		Observer:  obs,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", extract.UserMessage(err), err)
	}

	dst := filepath.Join(e.out, worker.SegmentName(ref, req.Mode, req.OutputExt()))
	if err := os.Rename(res.Path, dst); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s\n  tier: %s  window: %s  duration: %.1fs (%s)  size: %d\n",
		dst, res.Tier, res.Window, res.Duration.Seconds, res.Duration.Confidence, res.Size)
	return nil
}

func (e *env) screenshots(ctx context.Context, input string, n int) error {
	total, err := e.tools.Duration(ctx, input)
	if err != nil {
		return err
	}
	stamps, err := worker.PickTimestamps(total, n, rand.Intn)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.out, 0o755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	bar := progressbar.Default(int64(len(stamps)), "screenshots")
	for i, sec := range stamps {
		out := filepath.Join(e.out, fmt.Sprintf("%s_ss_%02d.jpg", base, i+1))
		if err := e.tools.Frame(ctx, input, float64(sec), out); err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	log.Info().Ints("seconds", stamps).Str("dir", e.out).Msg("screenshots written")
	return nil
}

// source serves a local path or an http(s) URL.
type source struct {
	in string
	dl *fetch.Client
}

func (s *source) URL(context.Context) (string, error) {
	if strings.HasPrefix(s.in, "http://") || strings.HasPrefix(s.in, "https://") {
		return s.in, nil
	}
	return filepath.Abs(s.in)
}

func (s *source) Download(ctx context.Context, dst string, progress fetch.ProgressFunc) error {
	url, err := s.URL(ctx)
	if err != nil {
		return err
	}
	if filepath.IsAbs(url) {
		return copyFile(url, dst)
	}
	_, err = s.dl.Download(ctx, url, dst, progress)
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// barObserver logs phases and draws a byte progress bar for downloads.
type barObserver struct {
	bar *progressbar.ProgressBar
}

func (o *barObserver) Phase(p extract.Phase, detail string) {
	log.Info().Str("phase", p.String()).Str("detail", detail).Msg("phase")
}

func (o *barObserver) Tier(t extract.Tier) {
	log.Info().Str("tier", t.String()).Msg("trying")
}

func (o *barObserver) Progress(done, total int64) {
	if o.bar == nil {
		if total <= 0 {
			total = -1
		}
		o.bar = progressbar.NewOptions64(total,
			progressbar.OptionSetDescription("downloading"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = o.bar.Set64(done)
}

func (o *barObserver) finish() {
	if o.bar != nil {
		_ = o.bar.Finish()
	}
}
