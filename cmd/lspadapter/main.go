package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lspadapter/internal/config"
	"lspadapter/internal/metrics"
	"lspadapter/internal/server"
	"lspadapter/internal/symbols"
	"lspadapter/internal/workspace"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// Version will be set during the build process using ldflags
var Version = "(dev) v0.0.0"

var (
	configPath string
	transport  string
	port       int
	verbosity  int
	logFile    string
	showVer    bool

	rootCmd = &cobra.Command{
		Use:           "lspadapter",
		Short:         "Language server for Go and Java workspaces",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	symbolsCmd = &cobra.Command{
		Use:   "symbols <file>",
		Short: "Print the symbols of a source file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runSymbols,
	}

	indexCmd = &cobra.Command{
		Use:   "index <root>",
		Short: "Index a project and list the files in its index",
		Args:  cobra.ExactArgs(1),
		RunE:  runIndex,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	flags.IntVarP(&verbosity, "verbose", "v", -1, "log verbosity, overrides the configuration")
	flags.StringVar(&logFile, "logfile", "", "path to log file, overrides the configuration")

	rootCmd.Flags().StringVarP(&transport, "transport", "t", "", "stdio, tcp or websocket")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "port of the tcp and websocket transports")
	rootCmd.Flags().BoolVar(&showVer, "version", false, "print the version of the program")

	rootCmd.AddCommand(symbolsCmd, indexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lspadapter: %s\n", err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies the command line
// overrides, then configures logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return cfg, err
	}
	if transport != "" {
		cfg.Transport = transport
	}
	if port != 0 {
		cfg.Port = port
	}
	if verbosity >= 0 {
		cfg.Log.Verbosity = verbosity
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	var path *string
	if cfg.Log.File != "" {
		path = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, path)
	return cfg, nil
}

func newEngine(cfg config.Config) (*workspace.Engine, error) {
	return workspace.New(workspace.Options{
		StateDir:   cfg.Index.Database,
		Workers:    cfg.Index.Workers,
		Extensions: cfg.Index.Extensions,
		Rescan:     cfg.Index.Rescan.Std(),
		Watch:      cfg.Index.Watch,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	if showVer {
		fmt.Printf("lspadapter version %s\n", Version)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := commonlog.GetLogger("lspadapter")
	log.Infof("starting lspadapter %s", Version)

	metrics.Serve(cfg.Metrics.Address)

	backend, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newServer := func() *server.Server {
		return server.NewServer(cfg, backend, Version)
	}
	switch cfg.Transport {
	case config.TransportTCP:
		return server.RunTCP(ctx, server.Address(cfg.Port), newServer)
	case config.TransportWebsocket:
		return server.RunWebSocket(ctx, server.Address(cfg.Port), newServer)
	default:
		return server.RunStdio(ctx, newServer)
	}
}

func runSymbols(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	backend, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx := cmd.Context()
	p, err := backend.LoadProject(ctx, filepath.Dir(path))
	if err != nil {
		return err
	}
	defer p.Dispose()

	doc, err := backend.OpenDocument(ctx, p, filepath.Base(path))
	if err != nil {
		return err
	}
	root, classifier, err := backend.SyntaxTree(ctx, doc)
	if err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	syms, err := symbols.Extract(ctx, root, classifier)
	if err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(symbols.ToSymbolInformation(doc.URI(), syms))
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	cfg.Index.Watch = false

	backend, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Project.InitTimeout.Std())
	if cfg.Project.InitTimeout == 0 {
		cancel()
		ctx, cancel = context.WithCancel(cmd.Context())
	}
	defer cancel()

	start := time.Now()
	loaded, err := backend.LoadProject(ctx, root)
	if err != nil {
		return err
	}
	p := loaded.(*workspace.Project)
	defer p.Dispose()
	if err := p.WaitIndexed(ctx); err != nil {
		return errors.Wrapf(err, "index %s", root)
	}

	paths, err := p.Store().Paths()
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Println(path)
	}
	fmt.Fprintf(os.Stderr, "indexed %d files in %s into %s\n", len(paths), time.Since(start).Round(time.Millisecond), backend.IndexPath(root))
	return nil
}
