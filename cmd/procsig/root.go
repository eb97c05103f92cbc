package main

import (
	"fmt"
	"strconv"

	"procsig/config"
	"procsig/process"
	"procsig/session"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "procsig",
		Short:         "Locate processes, read their memory and scan modules for byte signatures",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print every match and hexdump context")

	cmd.AddCommand(
		newPidCmd(opts),
		newModulesCmd(opts),
		newModuleCmd(opts),
		newScanCmd(opts),
		newReadCmd(opts),
		newScanFileCmd(opts),
		newWatchCmd(opts),
	)

	return cmd
}

func (o *globalOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func (o *globalOptions) backend() (*config.Config, process.Backend, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	b, err := newBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, b, nil
}

// attach opens a session on the named process
func (o *globalOptions) attach(name string) (*session.Session, error) {
	_, b, err := o.backend()
	if err != nil {
		return nil, err
	}

	s := session.New(b)
	if err := s.Setup(name); err != nil {
		return nil, err
	}
	return s, nil
}

func parseAddress(s string) (process.ProcessMemoryAddress, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return process.ProcessMemoryAddress(v), nil
}

func parseSize(s string) (process.ProcessMemorySize, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return process.ProcessMemorySize(v), nil
}
