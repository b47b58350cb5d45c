// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/tebeka/atexit"
	"gopkg.in/natefinch/lumberjack.v2"

	"gomyst/config"
	"gomyst/internal/core"
	"gomyst/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X gomyst/cmd.version=0.1.0"
var version = "0.0.1" //nolint:gochecknoglobals

// Execute parses args and runs the selected command.
func Execute(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := config.New()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("myst", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)

	// ── control API ──────────────────────────────────────────────
	fs.StringVar(&cfg.TequilapiAddress, "tequilapi.address", cfg.TequilapiAddress, "Control API address")
	fs.IntVar(&cfg.TequilapiPort, "tequilapi.port", cfg.TequilapiPort, "Control API port")

	// ── output ───────────────────────────────────────────────────
	envVerbose := cfg.Verbose
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write logs to a rotating file")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate and print the configuration, then exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	// Accepted for compatibility with the node's launch scripts.
	ignoreStrings(fs, "config-dir", "script-dir", "data-dir", "runtime-dir",
		"local-service-discovery", "ui.enable", "tequilapi.allowed-hostnames")
	ignoreBools(fs, "proxymode")

	fs.Usage = func() { printUsage(stderr, fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Verbose == 0 {
		cfg.Verbose = envVerbose
	}
	if showVersion {
		fmt.Fprintf(stdout, "myst %s\n", version)
		return nil
	}
	rest := fs.Args()
	if showHelp || len(rest) == 0 {
		printUsage(stderr, fs)
		return nil
	}

	// ── subcommand ───────────────────────────────────────────────
	var err error
	switch rest[0] {
	case "daemon":
		cfg.Command = config.CmdDaemon
		err = parseDaemon(cfg, rest[1:], stderr)
	case "cli":
		cfg.Command = config.CmdCLI
		err = parseCLI(cfg, rest[1:], stderr)
	case "connection":
		if len(rest) < 2 || rest[1] != "up" {
			return fmt.Errorf("unknown connection subcommand (use: myst connection up <providers>)")
		}
		cfg.Command = config.CmdConnectionUp
		err = parseConnectionUp(cfg, rest[2:], stderr)
	case "proxy":
		cfg.Command = config.CmdProxy
		err = parseProxy(cfg, rest[1:], stderr)
	default:
		return fmt.Errorf("unknown command %q (use --help for usage)", rest[0])
	}
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.DryRun {
		describe(stdout, cfg)
		return nil
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetOutput(stderr)
	if cfg.LogFile != "" {
		sink := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    config.DefaultLogMaxSizeMB,
			MaxBackups: config.DefaultLogMaxBackups,
			Compress:   true,
		}
		atexit.Register(func() { _ = sink.Close() })
		logger.SetOutput(sink)
		logger.SetTimestamps(true)
	}

	mode, err := core.Build(cfg, logger, stdout)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── subcommand parsers ───────────────────────────────────────────────

func parseDaemon(cfg *config.Config, args []string, stderr io.Writer) error {
	fs := subFlags("daemon", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("daemon takes no arguments, got %q", fs.Args())
	}
	return nil
}

// parseCLI handles `cli [--agreed-terms-and-conditions] [identities import <passphrase> <key...>]`.
func parseCLI(cfg *config.Config, args []string, stderr io.Writer) error {
	fs := subFlags("cli", stderr)
	fs.BoolVar(&cfg.AgreedTerms, "agreed-terms-and-conditions", cfg.AgreedTerms, "Accept the terms of use")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return nil
	}
	if len(rest) < 2 || rest[0] != "identities" || rest[1] != "import" {
		return fmt.Errorf("unknown cli subcommand %q (use: myst cli identities import <passphrase> <key>)",
			strings.Join(rest, " "))
	}
	rest = rest[2:]
	if len(rest) < 2 {
		return fmt.Errorf("identities import needs a passphrase and a key")
	}
	cfg.ImportPassphrase = rest[0]
	cfg.ImportKey = rest[1:]
	return nil
}

// parseConnectionUp handles `connection up [flags] <providers>`.
func parseConnectionUp(cfg *config.Config, args []string, stderr io.Writer) error {
	fs := subFlags("connection up", stderr)
	fs.SetInterspersed(true)
	fs.BoolVar(&cfg.AgreedTerms, "agreed-terms-and-conditions", cfg.AgreedTerms, "Accept the consumer terms of use")
	fs.IntVar(&cfg.ProxyPort, "proxy", cfg.ProxyPort, "Local proxy port")
	fs.StringVar(&cfg.ServiceType, "service-type", cfg.ServiceType, "Service type")
	addRelayFlags(fs, cfg)
	ignoreStrings(fs, "country", "location-type", "sort")
	ignoreBools(fs, "include-failed")

	if err := fs.Parse(args); err != nil {
		return err
	}
	switch fs.NArg() {
	case 0:
		// Validate reports the missing provider with a hint.
	case 1:
		cfg.Providers = fs.Arg(0)
	default:
		return fmt.Errorf("expected one comma-separated provider list, got %d arguments", fs.NArg())
	}
	return nil
}

// parseProxy handles `proxy --port N (--remote host:port | --socks)`.
func parseProxy(cfg *config.Config, args []string, stderr io.Writer) error {
	fs := subFlags("proxy", stderr)
	fs.SetInterspersed(true)
	fs.IntVarP(&cfg.ProxyPort, "port", "p", cfg.ProxyPort, "Local port to listen on (0 picks one)")
	fs.BoolVar(&cfg.SOCKS, "socks", cfg.SOCKS, "Serve SOCKS5 instead of forwarding to --remote")
	addRelayFlags(fs, cfg)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("proxy takes no positional arguments, got %q", fs.Args())
	}
	return nil
}

// addRelayFlags registers the flags shared by every command that runs
// the tunnel relay.
func addRelayFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVarP(&cfg.Remote, "remote", "r", cfg.Remote, "Relay target: host:port or ws(s)://host/path")
	fs.DurationVar(&cfg.PollDelay, "poll-delay", cfg.PollDelay, "Pause between accepts")
	fs.DurationVar(&cfg.GracePeriod, "grace", cfg.GracePeriod, "How long shutdown waits for sessions")
	fs.DurationVarP(&cfg.ConnTimeout, "timeout", "w", cfg.ConnTimeout, "Connect timeout")

	// ── SSH gateway ──────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Reach the remote via SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
}

// ── helpers ──────────────────────────────────────────────────────────

func subFlags(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	return fs
}

func ignoreStrings(fs *flag.FlagSet, names ...string) {
	for _, n := range names {
		fs.String(n, "", "")
		_ = fs.MarkHidden(n)
	}
}

func ignoreBools(fs *flag.FlagSet, names ...string) {
	for _, n := range names {
		fs.Bool(n, false, "")
		_ = fs.MarkHidden(n)
	}
}

// describe prints the resolved configuration for --dry-run.
func describe(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "command:   %s\n", cfg.Command)
	fmt.Fprintf(w, "tequilapi: %s\n", cfg.BaseURL())

	switch cfg.Command {
	case config.CmdCLI:
		fmt.Fprintf(w, "terms:     agree=%v version=%s\n", cfg.AgreedTerms, cfg.TermsVersion)
		if len(cfg.ImportKey) > 0 {
			fmt.Fprintf(w, "import:    %d key argument(s)\n", len(cfg.ImportKey))
		}
	case config.CmdConnectionUp:
		fmt.Fprintf(w, "providers: %s\n", strings.Join(cfg.ProviderList(), ","))
		fmt.Fprintf(w, "proxy:     %d (%s)\n", cfg.ProxyPort, cfg.ServiceType)
	case config.CmdProxy:
		fmt.Fprintf(w, "listen:    %s\n", util.LoopbackAddr(cfg.ProxyPort))
	}

	if cfg.Command == config.CmdProxy || cfg.Remote != "" {
		target := cfg.Remote
		if cfg.SOCKS {
			target = "socks5"
		}
		fmt.Fprintf(w, "remote:    %s\n", target)
		fmt.Fprintf(w, "timing:    poll=%s grace=%s timeout=%s\n",
			cfg.PollDelay, cfg.GracePeriod, cfg.ConnTimeout)
		if cfg.TunnelEnabled {
			fmt.Fprintf(w, "gateway:   %s@%s:%d\n", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
		}
	}
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `myst %s - minimal consumer node with a local tunnel relay

Usage:
  myst [global options] daemon
  myst [global options] cli [--agreed-terms-and-conditions] [identities import <passphrase> <key...>]
  myst [global options] connection up [options] <provider[,provider...]>
  myst [global options] proxy --port <port> (--remote <host:port|ws://...> | --socks) [options]

Global options:
`, version)
	fs.PrintDefaults()
	fmt.Fprint(w, `
Examples:
  myst daemon
  myst cli --agreed-terms-and-conditions identities import "" keystore.json
  myst connection up --agreed-terms-and-conditions 0xprovider
  myst proxy -p 10000 -r provider.example:443 -T admin@bastion
  myst -v proxy --socks --port 1080
`)
}
