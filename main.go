package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"stillcam/camera/params"
	"stillcam/config"
	"stillcam/notify"
	"stillcam/serve"
	"stillcam/sink"
	"stillcam/still"
	"stillcam/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// configArg finds the -config value before the other flags are defined, so
// that the file can supply their defaults.
func configArg(args []string) string {
	for i, a := range args {
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v := strings.TrimPrefix(name, "config="); v != name {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Reloads arrive before the controller exists; keep only the newest.
	reloads := make(chan *config.Config, 1)
	cfg := config.Default()
	if path := configArg(args); path != "" {
		err := config.Load(ctx, path, func(c *config.Config) {
			select {
			case <-reloads:
			default:
			}
			reloads <- c
		})
		if err != nil {
			log.Errorf("Failed to load configuration: %v", err)
			return still.ExitCode(err)
		}
		c := *config.Get()
		cfg = &c
	}

	fs := flag.NewFlagSet("stillcam", flag.ContinueOnError)
	fs.String("config", "", "YAML configuration file, watched for camera changes")
	fs.StringVar(&cfg.Output, "o", cfg.Output, "Output file template, - for stdout")
	fs.StringVar(&cfg.Output, "output", cfg.Output, "Output file template, - for stdout")
	fs.IntVar(&cfg.Width, "w", cfg.Width, "Image width")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "Image width")
	fs.IntVar(&cfg.Height, "h", cfg.Height, "Image height")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "Image height")
	fs.StringVar(&cfg.Encoding, "e", cfg.Encoding, "Encoding, rgb or i420")
	fs.StringVar(&cfg.Encoding, "encoding", cfg.Encoding, "Encoding, rgb or i420")
	fs.DurationVar(&cfg.Timeout, "t", cfg.Timeout, "Time before the capture, or total run time for a timelapse")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Time before the capture, or total run time for a timelapse")
	fs.DurationVar(&cfg.Timelapse, "tl", cfg.Timelapse, "Timelapse interval")
	fs.DurationVar(&cfg.Timelapse, "timelapse", cfg.Timelapse, "Timelapse interval")
	fs.BoolVar(&cfg.Triggered, "trigger", cfg.Triggered, "Capture on POST /trigger until interrupted")
	fs.DurationVar(&cfg.CaptureTimeout, "capture-timeout", cfg.CaptureTimeout, "Longest wait for one frame")
	fs.DurationVar(&cfg.DrainTimeout, "drain", cfg.DrainTimeout, "Longest wait for buffers when disabling a port")
	fs.IntVar(&cfg.Buffers, "buffers", cfg.Buffers, "Still buffers, 0 for the camera's recommendation")
	fs.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "Still buffer size, 0 for the camera's recommendation")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP address for status, metrics and triggers")
	fs.StringVar(&cfg.Database, "db", cfg.Database, "MySQL DSN of the capture log")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Verbose logging")
	pattern := fs.Bool("pattern", false, "Write the sensor test pattern and exit")
	params.RegisterFlags(fs, &cfg.Camera)
	fs.Usage = func() {
		w := fs.Output()
		fmt.Fprintln(w, "How to run:\n\tstillcam [options]")
		fs.PrintDefaults()
		fmt.Fprintln(w)
		params.PrintHelp(w)
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return still.ExitOK
		}
		return still.ExitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "Unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return still.ExitUsage
	}
	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	if err := cfg.Validate(); err != nil {
		log.Errorf("Invalid options: %v", err)
		return still.ExitCode(err)
	}

	if *pattern {
		if err := writePattern(cfg); err != nil {
			log.Errorf("Failed to write test pattern: %v", err)
			return still.ExitSoftware
		}
		return still.ExitOK
	}

	opts, err := cfg.Options()
	if err != nil {
		log.Errorf("Invalid options: %v", err)
		return still.ExitCode(err)
	}
	ctl := still.NewController(opts)
	ctl.Notifier = &notify.Notifier{}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-reloads:
				if err := ctl.UpdateParameters(c.Camera); err != nil {
					log.Errorf("Ignoring reloaded camera parameters: %v", err)
					continue
				}
				log.Info("Reloaded camera parameters")
			}
		}
	}()

	var st *store.Store
	if cfg.Database != "" {
		st, err = store.Open(cfg.Database)
		if err != nil {
			log.Errorf("Failed to open capture log: %v", err)
			return still.ExitResource
		}
		ctl.Notifier.Add(st)
	}

	if cfg.Listen != "" {
		srv := &serve.Server{
			Controller: ctl,
			Notifier:   ctl.Notifier,
			Store:      st,
			Events:     serve.NewEventStream(),
		}
		ctl.Notifier.Add(srv.Events)
		hs := &http.Server{Addr: cfg.Listen, Handler: srv.Handler()}
		go func() {
			log.Infof("Hosting status server on %s", cfg.Listen)
			if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("Status server failed: %v", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			hs.Shutdown(sctx)
		}()
	}

	out := sink.NewSequence(cfg.Output)
	defer out.Close()

	err = ctl.Run(ctx, out)
	ctl.Notifier.Wait()
	if err != nil {
		log.Errorf("Capture failed: %v", err)
	} else {
		log.Infof("Wrote %d stills", out.Written())
	}
	return still.ExitCode(err)
}

func writePattern(cfg *config.Config) error {
	var w io.Writer = os.Stdout
	if cfg.Output != sink.Stdout {
		path := cfg.Output
		if strings.Contains(path, "%") {
			path = fmt.Sprintf(path, 0)
		}
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "create pattern")
		}
		defer f.Close()
		w = f
	}
	return sink.WritePattern(w, cfg.Width, cfg.Height)
}
