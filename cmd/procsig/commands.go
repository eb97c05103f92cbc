package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"procsig/hexdump"
	"procsig/process"
	"procsig/process_blob"
	"procsig/publish"
	"procsig/search"
	"procsig/session"
	"procsig/watch"

	"github.com/spf13/cobra"
)

func newPidCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pid <process>",
		Short: "Print the id of a process by executable name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, b, err := opts.backend()
			if err != nil {
				return err
			}
			pid, err := b.FindProcessID(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pid)
			return nil
		},
	}
}

func newModulesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "modules <process>",
		Short: "List the modules loaded by a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, b, err := opts.backend()
			if err != nil {
				return err
			}
			pid, err := b.FindProcessID(args[0])
			if err != nil {
				return err
			}
			modules, err := b.ListModules(pid)
			if err != nil {
				return err
			}
			for _, m := range modules {
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %-12s %s\n", m.Base.ToString(), m.Size.ToString(), m.Name)
			}
			return nil
		},
	}
}

func newModuleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "module <process> <module>",
		Short: "Print the base and size of one module",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, b, err := opts.backend()
			if err != nil {
				return err
			}
			pid, err := b.FindProcessID(args[0])
			if err != nil {
				return err
			}
			m, err := b.FindModule(pid, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

func newScanCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <process> <module> <pattern>",
		Short: "Find the first match of a byte pattern in a module",
		Long:  `Patterns are hex byte pairs with "?" wildcards, for example "48 8B 0D ? ? ? ? 48 89 7C 24".`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.attach(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			return scanAndReport(cmd.OutOrStdout(), s, args[1], args[2], opts.verbose)
		},
	}
}

func newScanFileCmd(opts *globalOptions) *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "scan-file <file> <pattern>",
		Short: "Scan a module image on disk as if it were mapped at --base",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(base)
			if err != nil {
				return err
			}

			const name = "offline"
			img := process_blob.NewImage().AddProcess(name, 1)
			info, err := img.LoadModuleFile(1, args[0], addr)
			if err != nil {
				return err
			}

			s := session.New(img)
			if err := s.Setup(name); err != nil {
				return err
			}
			defer s.Close()

			return scanAndReport(cmd.OutOrStdout(), s, info.Name, args[1], opts.verbose)
		},
	}

	cmd.Flags().StringVar(&base, "base", "0x0", "Address the file is treated as mapped at")
	return cmd
}

func scanAndReport(out io.Writer, s *session.Session, module, pattern string, verbose bool) error {
	addr, err := s.FindPattern(module, pattern)
	if err != nil {
		return err
	}

	info, err := s.GetModuleInfo(module)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s+0x%X\n", addr.ToString(), info.Name, uint64(addr-info.Base))

	if !verbose {
		return nil
	}

	regions, err := s.ModuleRegions(info)
	if err != nil {
		return err
	}
	aob := process.ParseAOB(pattern)

	var dumps []string
	for _, r := range regions {
		data, err := s.ReadMemory(r.Base, r.Size)
		if err != nil {
			return err
		}
		for _, off := range search.All(data, aob) {
			at := r.Base + process.ProcessMemoryAddress(off)
			dumps = append(dumps, fmt.Sprintf("\n%s:\n%s", at.ToString(), hexdump.Match(data, r.Base, at, aob.Len())))
		}
	}

	fmt.Fprintf(out, "%d matches for %s\n", len(dumps), aob)
	for _, d := range dumps {
		fmt.Fprint(out, d)
	}
	return nil
}

func newReadCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read <process> <address> <size>",
		Short: "Hexdump a span of process memory",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			size, err := parseSize(args[2])
			if err != nil {
				return err
			}

			s, err := opts.attach(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			data, err := s.ReadMemory(addr, size)
			if err != nil {
				return err
			}

			var modules []process.ModuleInfo
			if opts.verbose {
				modules, _ = s.ListModules()
			}
			fmt.Fprint(cmd.OutOrStdout(), hexdump.DumpAt(data, addr, modules))
			return nil
		},
	}
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Resolve the configured signatures and publish their values every interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, b, err := opts.backend()
			if err != nil {
				return err
			}
			if cfg.Process == "" {
				return fmt.Errorf("no process configured")
			}
			if len(cfg.Signatures) == 0 {
				return fmt.Errorf("no signatures configured")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := session.New(b)
			if err := s.Setup(cfg.Process); err != nil {
				return err
			}
			defer s.Close()

			pub, err := publish.Dial(ctx, publish.Options{
				URL:            cfg.Publish.URL,
				ConnectRetries: cfg.Publish.ConnectRetries,
				ConnectDelay:   cfg.Publish.ConnectDelay,
				WriteTimeout:   cfg.Publish.Interval * 10,
			})
			if err != nil {
				return err
			}
			defer pub.Close()

			w, err := watch.New(s, pub, cfg.Signatures, cfg.Publish.Interval)
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
}
