package supervisor

import (
	"fmt"
	"os"
	"time"

	"github.com/edgard/launcher/internal/config"
	"github.com/edgard/launcher/internal/process"
)

// ProcessPlan is the resolved launch description of one process.
type ProcessPlan struct {
	Name string   `json:"name"`
	Argv []string `json:"argv"`
	Dir  string   `json:"dir,omitempty"`
	// Env is the configured environment layered over the launcher's own.
	Env        []string      `json:"env,omitempty"`
	Restart    string        `json:"restart,omitempty"`
	StartDelay time.Duration `json:"start_delay,omitempty"`
}

// Plan is everything the supervisor launches, in start order.
type Plan struct {
	Auxiliaries  []ProcessPlan `json:"auxiliaries"`
	Primary      ProcessPlan   `json:"primary"`
	ProbeAddress string        `json:"probe_address"`
}

// BuildPlan resolves the argv and environment of every enabled process.
func BuildPlan(cfg *config.Config) (*Plan, error) {
	argv, err := cfg.Server.Argv()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	plan := &Plan{
		Primary: ProcessPlan{
			Name: config.PrimaryName,
			Argv: argv,
			Dir:  cfg.Server.Dir,
			Env:  process.MergeEnv(nil, cfg.Env, cfg.Server.Env),
		},
		Auxiliaries:  []ProcessPlan{},
		ProbeAddress: cfg.Server.ProbeAddress(),
	}

	for _, aux := range cfg.EnabledAuxiliaries() {
		argv, err := aux.Argv()
		if err != nil {
			return nil, fmt.Errorf("auxiliary %s: %w", aux.Name, err)
		}
		plan.Auxiliaries = append(plan.Auxiliaries, ProcessPlan{
			Name:       aux.Name,
			Argv:       argv,
			Dir:        aux.Dir,
			Env:        process.MergeEnv(nil, cfg.Env, aux.Env),
			Restart:    aux.Restart,
			StartDelay: aux.StartDelay,
		})
	}

	return plan, nil
}

func (p ProcessPlan) spec() process.Spec {
	return process.Spec{
		Name: p.Name,
		Argv: p.Argv,
		Dir:  p.Dir,
		Env:  process.MergeEnv(os.Environ(), p.Env),
	}
}

func (p ProcessPlan) shouldRestart(exit process.Exit) bool {
	switch p.Restart {
	case config.RestartAlways:
		return true
	case config.RestartOnFailure:
		return exit.Failed()
	default:
		return false
	}
}
