package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"path"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/destinations/printer"
	"github.com/runreveal/hark/internal/dispatch"
	"github.com/runreveal/hark/internal/queue"
	"github.com/runreveal/hark/internal/sources/scanner"
	"github.com/runreveal/hark/internal/sources/streamlabs"
	"github.com/runreveal/hark/internal/types"
	"github.com/runreveal/lib/await"
	"github.com/runreveal/lib/loader"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
)

const tokenEnv = "HARK_STREAMLABS_TOKEN"

func init() {
	replace := func(groups []string, a slog.Attr) slog.Attr {
		// Remove the directory from the source's filename.
		if a.Key == slog.SourceKey {
			if source, ok := a.Value.Any().(*slog.Source); ok {
				source.File = filepath.Base(source.File)
			}
		}
		return a
	}
	level := slog.LevelInfo
	if _, ok := os.LookupEnv("HARK_DEBUG"); ok {
		level = slog.LevelDebug
	}

	// Alerts go to stdout; everything else goes to stderr.
	h := slog.NewTextHandler(
		os.Stderr,
		&slog.HandlerOptions{
			Level:       level,
			AddSource:   true,
			ReplaceAttr: replace,
		},
	)

	slogger := slog.New(h)
	slog.SetDefault(slogger)
}

func main() {
	slog.Info(fmt.Sprintf("starting %s", path.Base(os.Args[0])), "version", version)
	rootCmd := NewRootCommand()
	rootCmd.AddCommand(
		NewListenCommand(),
		NewRunCommand(),
		NewReplayCommand(os.Stdin),
		NewVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error(fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}

// Build the cobra command that handles our command line tool.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   path.Base(os.Args[0]),
		Short: `hark listens for stream alerts and prints them`,
		Long: `hark listens for stream alerts and prints them.
It connects to the Streamlabs socket API with a socket token, and prints
donation, follow and subscription alerts to stdout as they arrive.
Alerts can also be forwarded to webhooks, MQTT, NATS or SQS.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	return rootCmd
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// NewListenCommand is the zero-config path: one streamlabs socket, alerts to
// stdout.
func NewListenCommand() *cobra.Command {
	var (
		token    string
		url      string
		protocol int
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "listen to the streamlabs socket and print alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv(tokenEnv)
			}
			if token == "" {
				return fmt.Errorf("a socket token is required (--token or $%s)", tokenEnv)
			}
			src, err := streamlabs.New(
				streamlabs.WithURL(url),
				streamlabs.WithToken(token),
				streamlabs.WithProtocol(protocol),
			)
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cmd.OutOrStdout(),
				queue.Source{Name: "streamlabs", Source: src})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "streamlabs socket token (default $"+tokenEnv+")")
	cmd.Flags().StringVar(&url, "url", streamlabs.DefaultURL, "socket api url")
	cmd.Flags().IntVar(&protocol, "eio", 3, "engine.io protocol revision (3 or 4)")
	return cmd
}

// NewReplayCommand feeds newline-delimited JSON event payloads through the
// dispatcher, from a file or stdin.
func NewReplayCommand(stdin io.Reader) *cobra.Command {
	return &cobra.Command{
		Use:   "replay [file]",
		Short: "dispatch JSON event payloads from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runPipeline(cmd.Context(), cmd.OutOrStdout(),
				queue.Source{Name: "scanner", Source: scanner.NewScanner(in)})
		},
	}
}

func runPipeline(ctx context.Context, out io.Writer, src queue.Source) error {
	if ctx == nil {
		ctx = context.Background()
	}
	q := queue.New(
		queue.WithSources(src),
		queue.WithDestinations(queue.Destination{Name: "console", Destination: printer.NewPrinter(out)}),
		queue.WithHandler(dispatch.New()),
	)
	w := await.New(await.WithSignals)
	w.AddNamed(q, "queue")
	return ignoreCanceled(w.Run(ctx))
}

type MonConfig struct {
	Addr  string `json:"addr"`
	PProf struct {
		Path string `json:"path"`
	} `json:"pprof"`
	Metrics struct {
		Path string `json:"path"`
	} `json:"metrics"`
}

type Config struct {
	Sources      map[string]loader.Loader[hark.Source[types.Event]]      `json:"sources"`
	Destinations map[string]loader.Loader[hark.Destination[types.Alert]] `json:"destinations"`

	Monitoring MonConfig `json:"monitoring"`
	Tracing    bool      `json:"tracing"`
}

// Build the cobra command that handles our command line tool.
func NewRunCommand() *cobra.Command {
	var config Config
	var configFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the pipeline described by a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			bts, err := os.ReadFile(configFile)
			if err != nil {
				return err
			}
			err = loader.LoadConfig(bts, &config)
			if err != nil {
				return err
			}

			w := await.New(await.WithSignals)

			if config.Monitoring.Addr != "" {
				w.AddNamed(await.ListenAndServe(monitoringServer(config.Monitoring)), "monitoring")
			}

			srcs := make([]queue.Source, 0, len(config.Sources))
			for k, v := range config.Sources {
				src, err := v.Configure()
				if err != nil {
					return fmt.Errorf("source %s: %w", k, err)
				}
				srcs = append(srcs, queue.Source{Name: k, Source: src})
			}

			dsts := make([]queue.Destination, 0, len(config.Destinations))
			for k, v := range config.Destinations {
				dst, err := v.Configure()
				if err != nil {
					return fmt.Errorf("destination %s: %w", k, err)
				}
				dsts = append(dsts, queue.Destination{Name: k, Destination: dst})
			}

			q := queue.New(
				queue.WithSources(srcs...),
				queue.WithDestinations(dsts...),
				queue.WithHandler(dispatch.New()),
				queue.WithTracing(config.Tracing),
			)
			w.AddNamed(q, "queue")
			// main logs whatever is returned.
			return ignoreCanceled(w.Run(cmd.Context()))
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "config.json", "where to load the configuration from")
	err := cmd.MarkFlagRequired("config")
	if err != nil {
		panic(err)
	}

	return cmd
}

func monitoringServer(cfg MonConfig) *http.Server {
	mux := http.NewServeMux()
	if cfg.PProf.Path != "" {
		prefix := cfg.PProf.Path
		mux.HandleFunc(prefix, pprof.Index)
		mux.HandleFunc(prefix+"cmdline", pprof.Cmdline)
		mux.HandleFunc(prefix+"profile", pprof.Profile)
		mux.HandleFunc(prefix+"symbol", pprof.Symbol)
		mux.HandleFunc(prefix+"trace", pprof.Trace)
	}
	if cfg.Metrics.Path != "" {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	return &http.Server{Addr: cfg.Addr, Handler: mux}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
