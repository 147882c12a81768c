// Package main provides the snapsolve command: capture a browser tab or a
// dragged region of it, compress it to a size budget and optionally send it
// to a solving backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/snapsolve/pkg/browser"
	appconfig "github.com/entrhq/snapsolve/pkg/config"
	"github.com/entrhq/snapsolve/pkg/logging"
	"github.com/entrhq/snapsolve/pkg/overlay"
	"github.com/entrhq/snapsolve/pkg/pipeline"
	"github.com/entrhq/snapsolve/pkg/solver"
)

const (
	version      = "0.1.0"
	defaultModel = solver.DefaultModel
	sessionName  = "main"

	armTimeout = 10 * time.Second
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	URL         string
	Full        bool
	Region      string
	Interactive bool
	PlanFile    string
	OutputFile  string
	Solve       bool
	Prompt      string
	Mode        string
	Copy        bool
	ConfigFile  string
	Width       int
	Height      int
	DPR         float64
	Headless    bool
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Verbose     bool
	ShowVersion bool

	// set records which flags were given explicitly so they can override
	// the config file.
	set map[string]bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("snapsolve v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("snapsolve failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.URL, "url", "", "Page to open before capturing")
	flag.BoolVar(&cli.Full, "full", false, "Capture the full viewport")
	flag.StringVar(&cli.Region, "region", "", "Capture a region dragged from x1,y1 to x2,y2 (CSS pixels)")
	flag.BoolVar(&cli.Interactive, "interactive", false, "Open a visible browser and drag the region yourself (Esc cancels)")
	flag.StringVar(&cli.PlanFile, "plan", "", "Run a batch of captures from a YAML plan")
	flag.StringVar(&cli.OutputFile, "out", "", "Write the captured image to this file")
	flag.BoolVar(&cli.Solve, "solve", false, "Send the capture to the solving backend")
	flag.StringVar(&cli.Prompt, "prompt", "", "Extra instructions sent with the capture")
	flag.StringVar(&cli.Mode, "mode", "", "Solver mode: solve, explain or hint")
	flag.BoolVar(&cli.Copy, "copy", false, "Copy the answer (or the image data URI) to the clipboard")
	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (JSON)")
	flag.IntVar(&cli.Width, "width", 1280, "Viewport width in CSS pixels")
	flag.IntVar(&cli.Height, "height", 800, "Viewport height in CSS pixels")
	flag.Float64Var(&cli.DPR, "dpr", 1, "Device scale factor")
	flag.BoolVar(&cli.Headless, "headless", true, "Run the browser without a window")
	flag.StringVar(&cli.APIKey, "api-key", "", "API key for the solving backend")
	flag.StringVar(&cli.Model, "model", defaultModel, "Model to solve with")
	flag.StringVar(&cli.BaseURL, "base-url", "", "Solving backend base URL")
	flag.DurationVar(&cli.Timeout, "timeout", 2*time.Minute, "Overall timeout")
	flag.BoolVar(&cli.Verbose, "v", false, "Verbose logging")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "snapsolve - capture a browser region and solve it\n\n")
		fmt.Fprintf(os.Stderr, "Usage: snapsolve [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Capture a region at 2x and save it\n")
		fmt.Fprintf(os.Stderr, "  snapsolve -url https://example.com -dpr 2 -region 50,50,250,150 -out snip.png\n\n")
		fmt.Fprintf(os.Stderr, "  # Drag the region yourself and solve it\n")
		fmt.Fprintf(os.Stderr, "  snapsolve -url https://example.com -interactive -solve\n\n")
		fmt.Fprintf(os.Stderr, "  # Run a batch plan\n")
		fmt.Fprintf(os.Stderr, "  snapsolve -plan captures.yaml\n\n")
	}

	flag.Parse()

	cli.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		cli.set[f.Name] = true
	})
	return cli
}

// run wires the browser, overlay and pipeline and executes every job.
func run(ctx context.Context, cli *CLIConfig) error {
	if cli.Verbose {
		logging.SetDefaultLevel(logging.LevelDebug)
	}

	if err := appconfig.Initialize(cli.ConfigFile); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	logger := logging.MustLogger("cli")
	defer logger.Close()

	plan, err := buildPlan(cli)
	if err != nil {
		return err
	}

	browserCfg := resolveBrowser(cli)
	if plan.needsWindow() {
		browserCfg.Headless = false
	}

	var client *solver.Client
	if plan.needsSolver() {
		client, err = appconfig.BuildSolver(appconfig.SolverOptions{
			Model:   cli.Model,
			BaseURL: cli.BaseURL,
			APIKey:  cli.APIKey,
		}, defaultModel)
		if err != nil {
			return fmt.Errorf("failed to create solver: %w", err)
		}
	}

	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}

	policy, err := browser.NewURLPolicy(browserCfg.AllowPatterns, browserCfg.DenyPatterns)
	if err != nil {
		return fmt.Errorf("invalid URL patterns: %w", err)
	}

	manager := browser.NewSessionManager(browser.WithPolicy(policy))
	defer func() {
		if shutdownErr := manager.Shutdown(); shutdownErr != nil {
			logger.Warnf("browser shutdown: %v", shutdownErr)
		}
	}()

	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	session, err := manager.StartSession(sessionName, browser.SessionOptions{
		Headless:          browserCfg.Headless,
		Viewport:          &browser.Viewport{Width: browserCfg.ViewportWidth, Height: browserCfg.ViewportHeight},
		DeviceScaleFactor: browserCfg.DeviceScaleFactor,
	})
	if err != nil {
		return fmt.Errorf("failed to open tab: %w", err)
	}

	host := browser.NewPageHost(session.Page)
	defer host.Close()
	ctrl := overlay.NewController(host)
	host.Attach(ctrl)

	captureCfg := appconfig.GetCapture()
	svc := pipeline.NewService(manager,
		pipeline.WithSelector(ctrl),
		pipeline.WithFullScreenSettings(captureCfg.GetFullScreen()),
		pipeline.WithRegionSettings(captureCfg.GetRegion()),
	)

	r := &runner{
		session: session,
		ctrl:    ctrl,
		svc:     svc,
		client:  client,
		log:     logger,
		out:     os.Stdout,
	}

	for i, step := range plan.Steps {
		logger.Infof("step %d/%d: %s", i+1, len(plan.Steps), step.label())
		if err := r.runStep(ctx, step); err != nil {
			if !plan.ContinueOnError {
				return fmt.Errorf("step %q: %w", step.label(), err)
			}
			r.printError(step, err)
		}
	}
	return nil
}

// resolveBrowser merges browser flags over the config file. Flags that were
// not given fall back to the file.
func resolveBrowser(cli *CLIConfig) appconfig.BrowserSettings {
	cfg := appconfig.GetBrowser().Snapshot()
	if cli.set["width"] {
		cfg.ViewportWidth = cli.Width
	}
	if cli.set["height"] {
		cfg.ViewportHeight = cli.Height
	}
	if cli.set["dpr"] {
		cfg.DeviceScaleFactor = cli.DPR
	}
	if cli.set["headless"] {
		cfg.Headless = cli.Headless
	}
	return cfg
}
