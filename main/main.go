// Command asnkit encodes, decodes and converts values described by ASN.1
// modules in any of the registered formats.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rawbytedev/asnkit"
	"github.com/rawbytedev/asnkit/internal/config"
	"github.com/rawbytedev/asnkit/internal/logging"
	"github.com/rawbytedev/asnkit/pkg/parser"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/schemacache"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by the subcommands, set up before any of them
// runs.
type app struct {
	configPath string
	cacheDir   string
	logLevel   string

	cfg    config.Config
	logger zerolog.Logger
	cache  *schemacache.Cache
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zerolog.Nop()}
	root := &cobra.Command{
		Use:          "asnkit",
		Short:        "Schema-driven ASN.1 transcoder",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.cache != nil {
				return a.cache.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "settings file (YAML, or TOML with a .toml extension)")
	root.PersistentFlags().StringVar(&a.cacheDir, "cache-dir", "", "directory for cached parsed schemas")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "trace, debug, info, warn, error or off")

	root.AddCommand(
		newFormatsCmd(),
		newEncodeCmd(a),
		newDecodeCmd(a),
		newConvertCmd(a),
		newDemoCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.cacheDir != "" {
		cfg.CacheDir = a.cacheDir
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.logger = logging.New(cmd.ErrOrStderr(), logging.ProfileRuntime, cfg.LogLevel)
	if cfg.CacheDir != "" {
		c, err := schemacache.New(cfg.CacheDir, schemacache.WithLogger(a.logger))
		if err != nil {
			return err
		}
		a.cache = c
	}
	return nil
}

// loadModule reads and parses the schema file, through the cache when one
// is configured.
func (a *app) loadModule(path string) (*schema.Module, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		return a.cache.ParseCached(string(text))
	}
	return parser.Parse(string(text))
}

func (a *app) compile(m *schema.Module, format string) (*asnkit.Binding, error) {
	if format == "" {
		format = a.cfg.DefaultFormat
	}
	return asnkit.Compile(m, format, asnkit.WithLogger(a.logger), asnkit.WithMaxDepth(a.cfg.MaxDepth))
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the registered encoding rules",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range asnkit.Formats() {
				kind := "binary"
				if asnkit.TextFormat(name) {
					kind = "text"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-5s %s\n", name, kind)
			}
		},
	}
}
