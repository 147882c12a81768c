package config

import (
	"fmt"
	"os"

	"github.com/entrhq/snapsolve/pkg/logging"
	"github.com/entrhq/snapsolve/pkg/solver"
)

// SolverOptions are the solver values supplied on the command line. Empty
// fields are unset.
type SolverOptions struct {
	Model   string
	BaseURL string
	APIKey  string
	Logger  *logging.Logger
}

// ResolvedSolver is the outcome of applying precedence to solver settings.
type ResolvedSolver struct {
	Model       string
	BaseURL     string
	APIKey      string
	ImageDetail string
	Mode        string
}

// ResolveSolver applies configuration precedence:
// CLI flags > Environment variables > Config file > Defaults
func ResolveSolver(cli SolverOptions, defaultModel string) ResolvedSolver {
	r := ResolvedSolver{
		Model:   cli.Model,
		BaseURL: cli.BaseURL,
		APIKey:  cli.APIKey,
	}

	if r.APIKey == "" {
		r.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if r.BaseURL == "" {
		r.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	if fromFile := GetSolver(); fromFile != nil {
		// The flag default is indistinguishable from "unset", so a model from
		// the file wins over it.
		if r.Model == "" || r.Model == defaultModel {
			if m := fromFile.GetModel(); m != "" {
				r.Model = m
			}
		}
		if r.BaseURL == "" {
			r.BaseURL = fromFile.GetBaseURL()
		}
		if r.APIKey == "" {
			r.APIKey = fromFile.GetAPIKey()
		}
		r.ImageDetail = fromFile.GetImageDetail()
		r.Mode = fromFile.GetMode()
	}

	if r.Model == "" {
		r.Model = defaultModel
	}
	return r
}

// BuildSolver creates a solver client from resolved settings.
func BuildSolver(cli SolverOptions, defaultModel string) (*solver.Client, error) {
	r := ResolveSolver(cli, defaultModel)

	if r.APIKey == "" {
		return nil, fmt.Errorf("API key is required. Set OPENAI_API_KEY environment variable, use -api-key flag, or configure in ~/.snapsolve/config.json")
	}

	opts := []solver.Option{
		solver.WithModel(r.Model),
		solver.WithBaseURL(r.BaseURL),
		solver.WithImageDetail(r.ImageDetail),
		solver.WithLogger(cli.Logger),
	}

	client, err := solver.NewClient(r.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create solver client: %w", err)
	}
	return client, nil
}
