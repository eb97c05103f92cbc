// Package access composes handle acquisition strategies: the first strategy
// that produces a handle wins, and failures fall through to the next one.
package access

import (
	"errors"
	"fmt"

	"procsig/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Strategy is one way of obtaining a process handle
type Strategy interface {
	process.HandleAcquirer
	Name() string
}

// Chain tries its strategies in order
type Chain struct {
	strategies []Strategy
	log        *logger.Logger
}

var _ process.HandleAcquirer = (*Chain)(nil)

// NewChain builds a chain; nil strategies are skipped
func NewChain(strategies ...Strategy) *Chain {
	c := &Chain{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "access")),
	}
	for _, s := range strategies {
		if s != nil {
			c.strategies = append(c.strategies, s)
		}
	}
	return c
}

// AcquireHandle returns the handle of the first strategy that succeeds. When
// all fail the error wraps process.ErrHandleUnavailable and each strategy's error.
func (c *Chain) AcquireHandle(pid process.ProcessID) (process.Handle, error) {
	errs := []error{process.ErrHandleUnavailable}

	for i, s := range c.strategies {
		h, err := s.AcquireHandle(pid)
		if err == nil && h != nil {
			c.log.Infoln("acquired handle to process", pid, "via", s.Name())
			return h, nil
		}
		if err == nil {
			err = errors.New("no handle returned")
		}

		if i < len(c.strategies)-1 {
			c.log.Warn(s.Name(), " failed for process ", pid, ", falling back: ", err)
		} else {
			c.log.Warn(s.Name(), " failed for process ", pid, ": ", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}

	return nil, errors.Join(errs...)
}

// Func adapts a function to a Strategy
type Func struct {
	Label   string
	Acquire func(pid process.ProcessID) (process.Handle, error)
}

func (f Func) Name() string {
	return f.Label
}

func (f Func) AcquireHandle(pid process.ProcessID) (process.Handle, error) {
	return f.Acquire(pid)
}
