//go:build windows

package main

import (
	"procsig/config"
	"procsig/process"
	"procsig/process_windows"
)

func newBackend(cfg *config.Config) (process.Backend, error) {
	hc, err := cfg.HijackConfig()
	if err != nil {
		return nil, err
	}
	return process_windows.NewBackend(hc, cfg.Access.Hijack), nil
}
