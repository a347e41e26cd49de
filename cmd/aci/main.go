package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Vorion-Labs/aci/core/pkg/config"
	"github.com/Vorion-Labs/aci/core/pkg/provenance"
	"github.com/Vorion-Labs/aci/core/pkg/rolegate"
	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	cfg := config.Load()
	configureLogging(cfg.LogLevel, stderr)

	switch args[1] {
	case "init":
		return runInitCmd(cfg, args[2:], stdout, stderr)
	case "signal":
		return runSignalCmd(cfg, args[2:], stdout, stderr)
	case "score":
		return runScoreCmd(cfg, args[2:], stdout, stderr)
	case "check":
		return runCheckCmd(args[2:], stdout, stderr)
	case "pack":
		return runPackCmd(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: aci <command> [flags]

Commands:
  init    -entity <id> [-creation fresh|cloned|evolved|promoted|imported] [-profile volatile|standard|stable]
  signal  -entity <id> -type <signal type> -value <0..1>
  score   -entity <id>
  check   -role <R-L0..R-L8> -tier <0..5> [-agent <id>] [-domain <domain>]
  pack    -file <profile pack yaml>

Configuration is read from ACI_* environment variables.`)
}

func configureLogging(level string, w io.Writer) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}

func runInitCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	entity := fs.String("entity", "", "entity id")
	creation := fs.String("creation", "fresh", "creation type")
	profile := fs.String("profile", string(trust.ProfileStandard), "decay profile")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *entity == "" {
		fmt.Fprintln(stderr, "init: -entity is required")
		return 2
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec, err := rt.Engine.InitializeEntityWithProfile(ctx, *entity,
		provenance.CreationType(strings.ToLower(*creation)), trust.ProfileID(*profile))
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, rec)
}

func runSignalCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("signal", flag.ContinueOnError)
	fs.SetOutput(stderr)
	entity := fs.String("entity", "", "entity id")
	sigType := fs.String("type", "", "signal type")
	value := fs.Float64("value", -1, "signal value in [0,1]")
	source := fs.String("source", "cli", "signal source")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *entity == "" || *sigType == "" {
		fmt.Fprintln(stderr, "signal: -entity and -type are required")
		return 2
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "signal: %v\n", err)
		return 1
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sig := trust.Signal{Type: *sigType, Value: *value, Source: *source}
	if err := rt.Engine.RecordSignal(ctx, *entity, sig); err != nil {
		fmt.Fprintf(stderr, "signal: %v\n", err)
		return 1
	}
	rec, err := rt.Engine.GetScore(ctx, *entity)
	if err != nil {
		fmt.Fprintf(stderr, "signal: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, rec)
}

func runScoreCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(stderr)
	entity := fs.String("entity", "", "entity id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *entity == "" {
		fmt.Fprintln(stderr, "score: -entity is required")
		return 2
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "score: %v\n", err)
		return 1
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec, err := rt.Engine.GetScore(ctx, *entity)
	if err != nil {
		fmt.Fprintf(stderr, "score: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, rec)
}

func runCheckCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	role := fs.String("role", "", "role, R-L0 through R-L8")
	tier := fs.Int("tier", -1, "authorization tier, 0 through 5")
	agent := fs.String("agent", "", "agent id for policy evaluation")
	domain := fs.String("domain", "", "operation domain")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *role == "" || *tier < 0 {
		fmt.Fprintln(stderr, "check: -role and -tier are required")
		return 2
	}

	engine, err := rolegate.NewPolicyEngine()
	if err != nil {
		fmt.Fprintf(stderr, "check: %v\n", err)
		return 1
	}
	validator := rolegate.NewValidator(engine)
	decision := validator.Evaluate(*agent, rolegate.Role(*role), *tier, *domain)
	if err := printJSON(stdout, stderr, decision); err != 0 {
		return err
	}
	if !decision.Allowed {
		return 1
	}
	return 0
}

func runPackCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "profile pack yaml path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(stderr, "pack: -file is required")
		return 2
	}

	pack, err := config.LoadProfilePack(*file)
	if err != nil {
		fmt.Fprintf(stderr, "pack: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "pack %s v%s: %d profiles ok\n", pack.Name, pack.Version, len(pack.Profiles))
	return 0
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode output: %v\n", err)
		return 1
	}
	return 0
}
