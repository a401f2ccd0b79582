// Package main provides the CLI entry point for pingdrop.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/postalsys/pingdrop/internal/config"
	"github.com/postalsys/pingdrop/internal/echoguard"
	"github.com/postalsys/pingdrop/internal/health"
	"github.com/postalsys/pingdrop/internal/icmp"
	"github.com/postalsys/pingdrop/internal/logging"
	"github.com/postalsys/pingdrop/internal/metrics"
	"github.com/postalsys/pingdrop/internal/sysinfo"
	"github.com/postalsys/pingdrop/internal/transfer"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:   "pingdrop",
		Short: "pingdrop - file transfer over ICMP echo",
		Long: `pingdrop moves files between two hosts inside ICMP echo requests
and replies, for networks where ping is the only traffic that gets through.

Run "pingdrop serve" on the receiving host and "pingdrop send" on the
sending host. Both sides need root or CAP_NET_RAW.`,
		Version:       sysinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	bindGlobalFlags(rootCmd, &g)

	rootCmd.AddCommand(sendCmd(&g))
	rootCmd.AddCommand(serveCmd(&g))
	rootCmd.AddCommand(configCmd(&g))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func bindGlobalFlags(cmd *cobra.Command, g *globalFlags) {
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to configuration file (.yaml or .toml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: text, json")
}

// loadConfig reads the config file if one was given and applies the
// global flag overrides.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		loaded, err := config.Load(g.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func sendCmd(g *globalFlags) *cobra.Command {
	var (
		payloadSize int
		interval    time.Duration
		ackTimeout  time.Duration
		maxRetries  int
		bufferSize  int
		noProgress  bool
	)

	cmd := &cobra.Command{
		Use:   "send <destination> <file>",
		Short: "Send a file to a pingdrop receiver",
		Long: `Send a file to a host running "pingdrop serve".

Each chunk is sent as an ICMP echo request and must be acknowledged before
the next one goes out. A chunk that is never acknowledged after
--retries attempts aborts the transfer.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}

			dst, err := net.ResolveIPAddr("ip4", args[0])
			if err != nil {
				return fmt.Errorf("resolve destination: %w", err)
			}

			flags := cmd.Flags()
			cfg.Client.Destination = dst.IP.String()
			if flags.Changed("payload-size") {
				cfg.Client.PayloadSize = payloadSize
			}
			if flags.Changed("interval") {
				cfg.Client.Interval = interval
			}
			if flags.Changed("timeout") {
				cfg.Client.AckTimeout = ackTimeout
			}
			if flags.Changed("retries") {
				cfg.Client.MaxRetries = maxRetries
			}
			if flags.Changed("buffer") {
				cfg.Client.BufferSize = bufferSize
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runSend(cfg, args[1], !noProgress)
		},
	}

	defaults := config.Default().Client
	cmd.Flags().IntVarP(&payloadSize, "payload-size", "s", defaults.PayloadSize, "ICMP payload bytes per frame, including the 9-byte header")
	cmd.Flags().DurationVarP(&interval, "interval", "i", defaults.Interval, "Minimum gap between frames")
	cmd.Flags().DurationVarP(&ackTimeout, "timeout", "t", defaults.AckTimeout, "Time to wait for each acknowledgment")
	cmd.Flags().IntVarP(&maxRetries, "retries", "r", defaults.MaxRetries, "Sends per frame before giving up")
	cmd.Flags().IntVar(&bufferSize, "buffer", defaults.BufferSize, "Chunks read ahead from the file")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not print a progress line")

	return cmd
}

func runSend(cfg *config.Config, path string, progress bool) error {
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	dst := net.ParseIP(cfg.Client.Destination).To4()
	if dst == nil {
		return fmt.Errorf("destination must be an IPv4 address: %s", cfg.Client.Destination)
	}

	conn, err := icmp.Listen(icmp.DefaultConfig())
	if err != nil {
		return err
	}
	defer conn.Close()

	ccfg := transfer.ClientConfig{
		Destination: dst,
		PayloadSize: cfg.Client.PayloadSize,
		Interval:    cfg.Client.Interval,
		AckTimeout:  cfg.Client.AckTimeout,
		MaxRetries:  cfg.Client.MaxRetries,
		BufferSize:  cfg.Client.BufferSize,
		Metrics:     metrics.Default(),
	}

	var bar *progressLine
	if progress {
		bar = newProgressLine(os.Stdout)
		ccfg.OnProgress = bar.Update
	}

	client, err := transfer.NewClient(ccfg, conn, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := client.SendFile(ctx, path)
	bar.Done()
	if err != nil {
		var abort *transfer.AbortError
		if errors.As(err, &abort) {
			return fmt.Errorf("receiver stopped responding: %w", err)
		}
		return err
	}

	var rate float64
	if res.Duration > 0 {
		rate = float64(res.Bytes) / res.Duration.Seconds()
	}
	fmt.Printf("Sent %s (%s, %d chunks) in %s, %s/s, %d retransmissions\n",
		res.Filename,
		humanize.IBytes(uint64(res.Bytes)),
		res.TotalChunks,
		res.Duration.Round(time.Millisecond),
		humanize.IBytes(uint64(rate)),
		res.Retransmits)
	return nil
}

func serveCmd(g *globalFlags) *cobra.Command {
	var (
		outputDir     string
		listenTimeout time.Duration
		noSuppress    bool
		keepListening bool
		metricsAddr   string
		allowed       []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive files sent with pingdrop send",
		Long: `Listen for incoming transfers and write them to the output directory.

Kernel echo replies are turned off while serving (unless --no-suppress) and
restored on exit. The receiver stops after the first transfer unless
--keep-listening is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("output") {
				cfg.Server.OutputDir = outputDir
			}
			if flags.Changed("timeout") {
				cfg.Server.ListenTimeout = listenTimeout
			}
			if flags.Changed("no-suppress") {
				cfg.Server.SuppressEcho = !noSuppress
			}
			if flags.Changed("keep-listening") {
				cfg.Server.KeepListening = keepListening
			}
			if flags.Changed("metrics-addr") {
				cfg.Server.Metrics.Enabled = metricsAddr != ""
				cfg.Server.Metrics.Address = metricsAddr
			}
			if flags.Changed("allow") {
				cfg.Server.AllowedCIDRs = allowed
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServe(cfg)
		},
	}

	defaults := config.Default().Server
	cmd.Flags().StringVarP(&outputDir, "output", "o", defaults.OutputDir, "Directory for received files")
	cmd.Flags().DurationVarP(&listenTimeout, "timeout", "t", defaults.ListenTimeout, "Give up after this long (0 = wait forever)")
	cmd.Flags().BoolVar(&noSuppress, "no-suppress", false, "Leave kernel echo replies enabled")
	cmd.Flags().BoolVarP(&keepListening, "keep-listening", "k", false, "Keep receiving after a transfer finishes")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and health checks on this address")
	cmd.Flags().StringSliceVar(&allowed, "allow", nil, "Only accept frames from these CIDRs")

	return cmd
}

func runServe(cfg *config.Config) error {
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	nets, err := icmp.ParseCIDRs(cfg.Server.AllowedCIDRs)
	if err != nil {
		return err
	}
	icfg := icmp.DefaultConfig()
	icfg.AllowedCIDRs = nets

	conn, err := icmp.Listen(icfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	var suppressor echoguard.Suppressor = echoguard.Nop{}
	if cfg.Server.SuppressEcho {
		suppressor = echoguard.NewProcSuppressor()
	}

	srv, err := transfer.NewServer(transfer.ServerConfig{
		OutputDir:     cfg.Server.OutputDir,
		ListenTimeout: cfg.Server.ListenTimeout,
		KeepListening: cfg.Server.KeepListening,
		Suppressor:    suppressor,
		Metrics:       metrics.Default(),
	}, conn, logger)
	if err != nil {
		return err
	}

	if cfg.Server.Metrics.Enabled {
		hs := health.NewServer(health.ServerConfig{
			Address:      cfg.Server.Metrics.Address,
			ReadTimeout:  cfg.Server.Metrics.ReadTimeout,
			WriteTimeout: cfg.Server.Metrics.WriteTimeout,
		}, receiverStats{srv})
		if err := hs.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer hs.Stop()
		logger.Info("metrics server listening", slog.String("address", hs.Address().String()))
	}

	info := sysinfo.Collect()
	logger.Info("receiver ready",
		slog.String("version", info.Version),
		slog.String("hostname", info.Hostname),
		slog.Any("addresses", info.IPAddresses))

	ctx, cancel := signalContext()
	defer cancel()

	err = srv.Serve(ctx)
	for _, r := range srv.Reports() {
		status := "complete"
		if !r.Complete {
			status = fmt.Sprintf("incomplete, %d of %d chunks missing", r.Missing, r.TotalChunks)
		}
		fmt.Printf("Received %s (%s) from %s: %s\n", r.Path, humanize.IBytes(uint64(r.Bytes)), r.Peer, status)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Println("Interrupted.")
		return nil
	}
	return err
}

func configCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Load the configuration file (if any), apply defaults, and print the result as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Print(cfg.String())
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := sysinfo.Collect()
			fmt.Printf("pingdrop %s (%s, %s/%s)\n", info.Version, info.GoVersion, info.OS, info.Arch)
		},
	}
}
