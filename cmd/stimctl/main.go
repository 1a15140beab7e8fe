package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"stimctl/internal/config"
	"stimctl/internal/sensor"
	stimapi "stimctl/pkg/stimctl"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "ports":
		return runPorts(ctx, args[1:])
	case "sessions":
		return runSessions(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file path")
	profile := fs.String("profile", "", "built-in profile: hti|p24")
	dryRun := fs.Bool("dry-run", false, "use the no-op actuator adapter")
	noKeys := fs.Bool("no-keys", false, "disable operator key tuning")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, *profile)
	if err != nil {
		return err
	}
	client, err := stimapi.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := stimapi.SessionRequest{DryRun: *dryRun}
	if cfg.SensorPort == "-" {
		req.Sensor = stdinTransport{}
	}
	if !*noKeys {
		keys, err := openKeyboard(stop)
		if err != nil {
			log.Printf("keyboard unavailable, tuning disabled: %v", err)
		} else {
			defer keys.Close()
			req.Keys = keys
		}
	}

	return client.RunSession(ctx, req)
}

func runPorts(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("ports", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ports, err := sensor.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func runSessions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file path")
	profile := fs.String("profile", "", "built-in profile: hti|p24")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, *profile)
	if err != nil {
		return err
	}
	client, err := stimapi.New(cfg)
	if err != nil {
		return err
	}

	sessions, err := client.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s  %d records\n", s.SessionID, s.StartedAt.Format("2006-01-02 15:04:05"), s.Records)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file path")
	profile := fs.String("profile", "", "built-in profile: hti|p24")
	outDir := fs.String("out", "exports", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError("export requires exactly one session id")
	}

	cfg, err := config.Load(*configPath, *profile)
	if err != nil {
		return err
	}
	client, err := stimapi.New(cfg)
	if err != nil {
		return err
	}

	path, err := client.Export(ctx, fs.Arg(0), *outDir)
	if err != nil {
		return err
	}
	fmt.Printf("exported %s\n", path)
	return nil
}

// stdinTransport reads sensor lines from standard input without exposing a
// write side, so no peer commands are sent to the terminal.
type stdinTransport struct{}

func (stdinTransport) Read(p []byte) (int, error) { return os.Stdin.Read(p) }
func (stdinTransport) Close() error               { return nil }

var _ io.ReadCloser = stdinTransport{}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: stimctl <run|ports|sessions|export> [flags]", msg)
}
