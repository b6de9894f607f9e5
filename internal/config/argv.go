package config

import (
	"net"
	"strconv"
)

// Address returns the bind address passed to the server.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ProbeAddress returns the address used to check that the server listens.
// Wildcard binds are probed over loopback.
func (s ServerConfig) ProbeAddress() string {
	host := s.Host
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::", "[::]":
		host = "::1"
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// Argv renders the server command line. A non-empty Command is used verbatim;
// otherwise the command is built from the individual options:
//
//	binary [--worker-class W] -w N --bind host:port [--access-logfile A] [--error-logfile E] extra... app
func (s ServerConfig) Argv() ([]string, error) {
	if s.Command != "" {
		return splitCommand(s.Command)
	}

	argv := []string{s.Binary}
	if s.WorkerClass != "" {
		argv = append(argv, "--worker-class", s.WorkerClass)
	}
	argv = append(argv, "-w", strconv.Itoa(s.Workers), "--bind", s.Address())
	if s.AccessLog != "" {
		argv = append(argv, "--access-logfile", s.AccessLog)
	}
	if s.ErrorLog != "" {
		argv = append(argv, "--error-logfile", s.ErrorLog)
	}
	argv = append(argv, s.ExtraArgs...)
	argv = append(argv, s.App)
	return argv, nil
}

// Argv splits the auxiliary command line and appends Args unsplit.
func (a AuxiliaryConfig) Argv() ([]string, error) {
	argv, err := splitCommand(a.Command)
	if err != nil {
		return nil, err
	}
	return append(argv, a.Args...), nil
}
