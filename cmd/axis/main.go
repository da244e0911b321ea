// Axis is a personal study planner: an HTTP API over each user's tasks,
// habits and schedule, plus an assistant that edits the plan through a
// small set of tools.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	axis serve                     Start the API server
//	axis init [dir]                Write a default config.yaml
//	axis -user <email> ask <text>  Send one message to the assistant
//	axis -user <email> tools       Serve the planner tools over stdio (MCP)
//	axis version                   Print version and build information
//	axis -o json version           Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/axis/internal/agent"
	"github.com/nugget/axis/internal/api"
	"github.com/nugget/axis/internal/buildinfo"
	"github.com/nugget/axis/internal/config"
	"github.com/nugget/axis/internal/mqtt"
	"github.com/nugget/axis/internal/toolserver"
)

// main constructs the OS-level environment and delegates to [run] so
// the whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// options are the global flags.
type options struct {
	configPath string
	outputFmt  string // "text" (default) or "json"
	userEmail  string
}

// run is the real entry point. Arguments are parsed by hand rather than
// with the flag package, which relies on package-level state.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var opts options
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			opts.configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			opts.configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			opts.outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			opts.outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			opts.outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-user" && i+1 < len(args):
			opts.userEmail = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-user="):
			opts.userEmail = strings.TrimPrefix(args[i], "-user=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if opts.outputFmt == "" {
		opts.outputFmt = "text"
	}
	if opts.outputFmt != "text" && opts.outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", opts.outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, opts)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 || opts.userEmail == "" {
			return fmt.Errorf("usage: axis -user <email> ask <message>")
		}
		return runAsk(ctx, stdout, stderr, opts, strings.Join(cmdArgs, " "))
	case "tools":
		if opts.userEmail == "" {
			return fmt.Errorf("usage: axis -user <email> tools")
		}
		return runTools(ctx, stdin, stdout, stderr, opts)
	case "version":
		return runVersion(stdout, opts.outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Axis - study planner and assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: axis [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Write a default config.yaml (default: .)")
	fmt.Fprintln(w, "  ask <text>   Send one message to the assistant (requires -user)")
	fmt.Fprintln(w, "  tools        Serve the planner tools over stdio (requires -user)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -user <email>     Account to act as for ask and tools")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/axis/config.yaml, /etc/axis/config.yaml")
	return nil
}

// runAsk sends one message to the assistant on behalf of an existing
// account and prints the reply.
func runAsk(ctx context.Context, stdout, stderr io.Writer, opts options, message string) error {
	a, err := openApp(opts.configPath, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.store.UserByEmail(ctx, opts.userEmail)
	if err != nil {
		return fmt.Errorf("look up %s: %w", opts.userEmail, err)
	}

	res, err := a.newLoop().Run(ctx, user.ID, message)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if opts.outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(stdout, res.Reply)
	return nil
}

// runTools serves the planner tools for one account over stdio. Stdout
// carries the protocol, so logs go to stderr.
func runTools(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, opts options) error {
	a, err := openApp(opts.configPath, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.store.UserByEmail(ctx, opts.userEmail)
	if err != nil {
		return fmt.Errorf("look up %s: %w", opts.userEmail, err)
	}

	srv, err := toolserver.New(a.store, a.tools, user.ID, a.logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := srv.Listen(ctx, stdin, stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("tool server: %w", err)
	}
	return nil
}

// runServe starts the HTTP API and, when configured, the MQTT summary
// publisher, and blocks until SIGINT or SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, opts options) error {
	a, err := openApp(opts.configPath, stdout)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := a.logger

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var pub *mqtt.Publisher
	if a.cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(a.cfg.DataDir)
		if err != nil {
			return fmt.Errorf("mqtt instance id: %w", err)
		}
		pub = mqtt.New(a.cfg.MQTT, instanceID, logger)
		a.store.OnSave(pub.OnSave)
		a.store.OnDelete(pub.OnDelete)
		go func() {
			if err := pub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
		logger.Info("mqtt publishing enabled",
			"broker", a.cfg.MQTT.Broker,
			"device_name", a.cfg.MQTT.DeviceName,
		)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	server := api.NewServer(a.cfg.Listen.Address, a.cfg.Listen.Port, api.Deps{
		Store:     a.store,
		Usage:     a.usage,
		Auth:      a.newAuthenticator(),
		Tools:     a.tools,
		Agent:     a.newLoop(),
		Scheduler: a.generator,
		PublicURL: a.cfg.PublicURL,
		RateLimit: a.cfg.RateLimit,
	}, logger)

	// stopped closes once in-flight requests have drained, so the
	// database is not closed underneath them.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("api shutdown failed", "error", err)
		}
		if pub != nil {
			if err := pub.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
	}()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	<-stopped

	logger.Info("Axis stopped")
	return nil
}

// loadConfig locates, parses and validates the YAML configuration.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// agentLimits maps the configured bounds onto the loop's limits.
func agentLimits(cfg config.AgentConfig) agent.Limits {
	return agent.Limits{
		MaxSteps:  cfg.MaxSteps,
		MaxTasks:  cfg.MaxTasks,
		MaxHabits: cfg.MaxHabits,
	}
}
