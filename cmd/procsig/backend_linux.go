//go:build linux

package main

import (
	"procsig/config"
	"procsig/process"
	"procsig/process_linux"
)

func newBackend(cfg *config.Config) (process.Backend, error) {
	hc, err := cfg.HijackConfig()
	if err != nil {
		return nil, err
	}
	return process_linux.NewBackend(hc, cfg.Access.Hijack), nil
}
