// Package watch resolves configured signatures once and then reads the
// located values on a fixed cadence, handing every tick to a Sink.
package watch

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"procsig/config"
	"procsig/process"
	"procsig/publish"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/google/uuid"
)

// Source is the attached process the watcher reads from
type Source interface {
	process.AddressReader
	FindPattern(module, pattern string) (process.ProcessMemoryAddress, error)
	PID() process.ProcessID
	ID() uuid.UUID
}

type Sink interface {
	Publish(payload publish.Payload) (bool, error)
}

// Target is a signature with its resolved address
type Target struct {
	Signature config.Signature
	Address   process.ProcessMemoryAddress
}

// Resolve locates every signature. Signatures that fail to resolve are
// reported in the joined error and left out of the result.
func Resolve(src Source, sigs []config.Signature) ([]Target, error) {
	var targets []Target
	var errs []error

	for _, sig := range sigs {
		addr, err := resolve(src, sig)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sig.Name, err))
			continue
		}
		targets = append(targets, Target{Signature: sig, Address: addr})
	}

	return targets, errors.Join(errs...)
}

func resolve(src Source, sig config.Signature) (process.ProcessMemoryAddress, error) {
	addr, err := src.FindPattern(sig.Module, sig.Pattern)
	if err != nil {
		return 0, err
	}

	if sig.Relative != nil {
		addr, err = process.ResolveRelative(src, addr, sig.Relative.Displacement, sig.Relative.Length)
		if err != nil {
			return 0, err
		}
	}

	return addr.Add(sig.Offset), nil
}

type Watcher struct {
	src      Source
	sink     Sink
	interval time.Duration
	targets  []Target
	tick     uint64
	log      *logger.Logger
}

// New resolves sigs against src. It fails only when nothing resolved.
func New(src Source, sink Sink, sigs []config.Signature, interval time.Duration) (*Watcher, error) {
	w := &Watcher{
		src:      src,
		sink:     sink,
		interval: interval,
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "watch")),
	}

	targets, err := Resolve(src, sigs)
	if err != nil {
		w.log.Warn("unresolved signatures: ", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no signature resolved: %w", err)
	}

	for _, t := range targets {
		w.log.Infoln(t.Signature.Name, "at", t.Address.ToString())
	}

	w.targets = targets
	return w, nil
}

func (w *Watcher) Targets() []Target {
	return w.targets
}

// Tick reads every target once and passes the result to the sink. Values
// that fail to read are left out of this tick.
func (w *Watcher) Tick(now time.Time) error {
	w.tick++

	values := make([]publish.Value, 0, len(w.targets))
	for _, t := range w.targets {
		data, err := w.src.ReadMemory(t.Address, process.ProcessMemorySize(t.Signature.Size))
		if err != nil {
			w.log.Debugln("tick", w.tick, t.Signature.Name, "read failed:", err)
			continue
		}
		values = append(values, publish.Value{
			Name:    t.Signature.Name,
			Address: t.Address.ToString(),
			Data:    hex.EncodeToString(data),
		})
	}

	_, err := w.sink.Publish(publish.Payload{
		Session: w.src.ID().String(),
		PID:     uint32(w.src.PID()),
		Tick:    w.tick,
		Time:    now.UTC(),
		Values:  values,
	})
	return err
}

// Run ticks every interval until ctx is done or the sink fails
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Infoln("watching", len(w.targets), "values every", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.log.Infoln("stopped after", w.tick, "ticks")
			return nil
		case now := <-ticker.C:
			if err := w.Tick(now); err != nil {
				return err
			}
		}
	}
}
