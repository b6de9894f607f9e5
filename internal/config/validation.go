package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mattn/go-shellwords"
)

// PrimaryName is the process name reserved for the foreground server.
const PrimaryName = "server"

// Validate checks struct tags first and then the cross-field rules that
// tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	var errs []error

	errs = append(errs, validateEnv("env", c.Env)...)
	errs = append(errs, validateEnv("server.env", c.Server.Env)...)

	if _, err := c.Server.Argv(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}

	seen := make(map[string]bool, len(c.Auxiliaries))
	for i, aux := range c.Auxiliaries {
		if aux.Name == PrimaryName {
			errs = append(errs, fmt.Errorf("auxiliaries[%d]: name %q is reserved", i, aux.Name))
		}
		if seen[aux.Name] {
			errs = append(errs, fmt.Errorf("auxiliaries[%d]: duplicate name %q", i, aux.Name))
		}
		seen[aux.Name] = true

		if _, err := aux.Argv(); err != nil {
			errs = append(errs, fmt.Errorf("auxiliaries[%d] %s: %w", i, aux.Name, err))
		}
		errs = append(errs, validateEnv(fmt.Sprintf("auxiliaries[%d].env", i), aux.Env)...)
	}

	if c.Supervisor.Backoff.Initial > c.Supervisor.Backoff.Max {
		errs = append(errs, fmt.Errorf("supervisor.backoff: initial %s exceeds max %s",
			c.Supervisor.Backoff.Initial, c.Supervisor.Backoff.Max))
	}

	if c.Health.Enabled {
		if err := c.validateHealthAddr(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

func (c *Config) validateHealthAddr() error {
	_, portStr, err := net.SplitHostPort(c.Health.Addr)
	if err != nil {
		return fmt.Errorf("health.addr %q: %w", c.Health.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("health.addr %q: invalid port", c.Health.Addr)
	}
	if port == c.Server.Port {
		return fmt.Errorf("health.addr %q: port collides with server.port", c.Health.Addr)
	}
	return nil
}

func validateEnv(field string, env []string) []error {
	var errs []error
	for _, kv := range env {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			errs = append(errs, fmt.Errorf("%s: %q is not KEY=VALUE", field, kv))
		}
	}
	return errs
}

// splitCommand splits a command line using shell quoting rules.
func splitCommand(command string) ([]string, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command %q is empty", command)
	}
	return argv, nil
}
