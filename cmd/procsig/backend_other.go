//go:build !windows && !linux

package main

import (
	"fmt"
	"runtime"

	"procsig/config"
	"procsig/process"
)

func newBackend(cfg *config.Config) (process.Backend, error) {
	return nil, fmt.Errorf("no process backend for %s", runtime.GOOS)
}
