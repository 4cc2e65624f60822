package main

import (
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/oy3o/jsonmap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app carries the state shared by all subcommands.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        jsonmap.Config
	reg        *jsonmap.Registry
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:   "jsonmap",
		Short: "Stream, canonicalize and validate JSON documents",
		Long: `jsonmap processes JSON documents through the jsonmap token stream.

Settings come from ./jsonmap.yaml (or --config), JSONMAP_* environment
variables and flags, in increasing order of precedence.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ./jsonmap.yaml)")
	flags.Int("buffer-size", jsonmap.BUFFER_SIZE, "read/write buffer size in bytes")
	flags.Int("max-depth", jsonmap.DefaultMaxDepth, "maximum nesting depth accepted")
	flags.String("log-level", "", "log level (debug, info, warn, error); empty disables logging")
	_ = a.v.BindPFlag("buffer_size", flags.Lookup("buffer-size"))
	_ = a.v.BindPFlag("max_depth", flags.Lookup("max-depth"))
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(NewFmtCommand(a))
	root.AddCommand(NewCanonCommand(a))
	root.AddCommand(NewValidateCommand(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(a.v, a.configFile)
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	// canon needs number literals preserved
	reg, err := jsonmap.NewRegistry(append(opts, jsonmap.WithUseNumber(true))...)
	if err != nil {
		return err
	}
	a.cfg, a.reg = cfg, reg
	return nil
}

func (a *app) logger() *zap.Logger { return a.reg.Logger() }

// open returns the named file, or stdin for "" and "-".
func open(cmd *cobra.Command, args []string) (io.ReadCloser, string, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), "<stdin>", nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, args[0], err
	}
	return f, args[0], nil
}

func (a *app) streams(cmd *cobra.Command, in io.Reader) (*jsonmap.Reader, *jsonmap.Writer, error) {
	r, err := jsonmap.NewReaderSize(in, a.cfg.BufferSize)
	if err != nil {
		return nil, nil, err
	}
	w, err := jsonmap.NewWriterSize(cmd.OutOrStdout(), a.cfg.BufferSize)
	if err != nil {
		return nil, nil, err
	}
	return r.WithMaxDepth(a.cfg.MaxDepth), w, nil
}

// eachValue calls fn for every top-level value of r.
func eachValue(r *jsonmap.Reader, fn func() error) (int, error) {
	n := 0
	for {
		k, err := r.Peek()
		if err != nil {
			return n, err
		}
		if k == jsonmap.EOF {
			return n, nil
		}
		if err := fn(); err != nil {
			return n, err
		}
		n++
	}
}

// NewFmtCommand creates the fmt command
func NewFmtCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fmt [file]",
		Short: "Compact JSON documents, keeping member order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, name, err := open(cmd, args)
			if err != nil {
				return err
			}
			defer in.Close()

			r, w, err := a.streams(cmd, in)
			if err != nil {
				return err
			}
			n, err := eachValue(r, func() error { return jsonmap.Copy(w, r) })
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return finish(cmd, a, w, name, n)
		},
	}
}

// NewCanonCommand creates the canon command
func NewCanonCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "canon [file]",
		Short: "Rewrite JSON documents with members sorted by name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, name, err := open(cmd, args)
			if err != nil {
				return err
			}
			defer in.Close()

			r, w, err := a.streams(cmd, in)
			if err != nil {
				return err
			}
			n, err := eachValue(r, func() error {
				var doc any
				if err := a.reg.ReadValue(r, &doc); err != nil {
					return err
				}
				return a.reg.WriteValue(w, reflect.ValueOf(doc))
			})
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return finish(cmd, a, w, name, n)
		},
	}
}

// NewValidateCommand creates the validate command
func NewValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check that the input is well-formed JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, name, err := open(cmd, args)
			if err != nil {
				return err
			}
			defer in.Close()

			r, err := jsonmap.NewReaderSize(in, a.cfg.BufferSize)
			if err != nil {
				return err
			}
			r.WithMaxDepth(a.cfg.MaxDepth)
			n, err := eachValue(r, r.SkipValue)
			if err != nil {
				a.logger().Debug("validation failed", zap.String("input", name), zap.Int64("offset", r.Count()), zap.Error(err))
				return fmt.Errorf("%s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d values)\n", name, n)
			return nil
		},
	}
}

// finish flushes w and ends the output with a newline.
func finish(cmd *cobra.Command, a *app, w *jsonmap.Writer, name string, n int) error {
	size, err := w.Result()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if n > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	a.logger().Debug("documents written", zap.String("input", name), zap.Int("values", n), zap.Int64("bytes", size))
	return nil
}
