package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/gops/agent"

	"github.com/KevoDB/ingest/pkg/common/log"
	"github.com/KevoDB/ingest/pkg/config"
	"github.com/KevoDB/ingest/pkg/engine"
	"github.com/KevoDB/ingest/pkg/sstable"
	"github.com/KevoDB/ingest/pkg/telemetry"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".flush"),
	readline.PcItem(".segments"),
	readline.PcItem(".dump"),
	readline.PcItem("PUT"),
)

const helpText = `
Kevo ingest - write path of a log-structured storage engine

Usage:
  kevo [options] [directory]  - Start with a segment directory (default ".")

Options:
  -server                 - Run in server mode, exposing a gRPC API
  -address string         - Address to listen on in server mode (default "localhost:50051")
  -memtable-size int      - Bytes a memtable holds before it is frozen
  -max-memtables int      - Active plus frozen memtables allowed at once
  -memtable-kind string   - "log" keeps insertion order, "sorted" orders by key

Commands (interactive mode only):
  .help                   - Show this help message
  .exit                   - Persist the active memtable and exit
  .stats [prefix]         - Show write path statistics, optionally by name prefix
  .flush                  - Freeze the active memtable now
  .segments               - List segment files with entry counts and checksums
  .dump N                 - Print the records of segment N

  PUT key value           - Store a key-value pair
`

// Config holds the application configuration
type Config struct {
	ServerMode bool
	ListenAddr string
	Dir        string
	ConfigDir  string

	MemTableSize int64
	MaxMemTables int
	MemTableKind string
	BufferSize   int

	LogLevel  string
	Telemetry bool
	Gops      bool

	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string
	TLSCAFile   string

	// explicit records which flags were given on the command line
	explicit map[string]bool
}

func main() {
	cfg := parseFlags(flag.CommandLine, os.Args[1:])
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// run wires the write path and serves it until shutdown. Telemetry is flushed
// on every return path.
func run(cfg Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := log.NewStandardLogger(log.WithLevel(level), log.WithOutput(os.Stderr))
	log.SetDefaultLogger(logger)

	if cfg.Gops {
		if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
			logger.Warn("gops: %v", err)
		}
	}

	tel, err := setupTelemetry(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tel.Shutdown(ctx)
	}()

	engineCfg, err := buildEngineConfig(cfg)
	if err != nil {
		return err
	}

	w, err := engine.Open(engineCfg, engine.WithLogger(logger), engine.WithTelemetry(tel))
	if err != nil {
		return fmt.Errorf("opening write path: %w", err)
	}

	if cfg.ServerMode {
		return runServer(w, cfg, logger, tel)
	}
	return runInteractive(w, cfg.Dir)
}

// parseFlags parses args into a Config
func parseFlags(fs *flag.FlagSet, args []string) Config {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Kevo ingest - write path of a log-structured storage engine\n\n")
		fmt.Fprintf(fs.Output(), "Usage: kevo [options] [directory]\n\n")
		fmt.Fprintf(fs.Output(), "By default, kevo runs an interactive shell that writes into the directory.\n")
		fmt.Fprintf(fs.Output(), "If -server flag is provided, kevo exposes the write path as a gRPC API.\n\n")
		fmt.Fprintf(fs.Output(), "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nFor shell commands, start kevo and type .help\n")
	}

	defaults := config.NewDefaultConfig("")

	var cfg Config
	fs.BoolVar(&cfg.ServerMode, "server", false, "Run in server mode, exposing a gRPC API")
	fs.StringVar(&cfg.ListenAddr, "address", "localhost:50051", "Address to listen on in server mode")
	fs.StringVar(&cfg.Dir, "dir", "", "Segment directory (overrides the positional argument)")
	fs.StringVar(&cfg.ConfigDir, "config", "", "Directory holding the OPTIONS file (default: the segment directory)")

	fs.Int64Var(&cfg.MemTableSize, "memtable-size", defaults.MemTableSize, "Bytes a memtable holds before it is frozen")
	fs.IntVar(&cfg.MaxMemTables, "max-memtables", defaults.MaxMemTables, "Active plus frozen memtables allowed at once")
	fs.StringVar(&cfg.MemTableKind, "memtable-kind", defaults.MemTableKind, "MemTable kind: log or sorted")
	fs.IntVar(&cfg.BufferSize, "buffer-size", defaults.WriteBufferSize, "Segment writer buffer size in bytes")

	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Telemetry, "telemetry", false, "Enable OpenTelemetry (see KEVO_TELEMETRY_* variables)")
	fs.BoolVar(&cfg.Gops, "gops", false, "Start the gops diagnostics agent")

	fs.BoolVar(&cfg.TLSEnabled, "tls", false, "Enable TLS for secure connections")
	fs.StringVar(&cfg.TLSCertFile, "cert", "", "TLS certificate file path")
	fs.StringVar(&cfg.TLSKeyFile, "key", "", "TLS private key file path")
	fs.StringVar(&cfg.TLSCAFile, "ca", "", "TLS CA certificate file for client verification")

	fs.Parse(args)

	if cfg.Dir == "" {
		cfg.Dir = "."
		if fs.NArg() > 0 {
			cfg.Dir = fs.Arg(0)
		}
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = cfg.Dir
	}

	cfg.explicit = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { cfg.explicit[f.Name] = true })

	return cfg
}

// buildEngineConfig loads the OPTIONS file when there is one, applies the
// flags given on the command line and saves the result back.
func buildEngineConfig(cfg Config) (*config.Config, error) {
	engineCfg, err := config.LoadConfigFromManifest(cfg.ConfigDir)
	switch {
	case errors.Is(err, config.ErrManifestNotFound):
		engineCfg = config.NewDefaultConfig(cfg.Dir)
		cfg.explicit = nil // every flag value applies, defaults included
	case err != nil:
		return nil, err
	}

	apply := func(name string) bool { return cfg.explicit == nil || cfg.explicit[name] }
	engineCfg.Update(func(c *config.Config) {
		c.SSTDir = cfg.Dir
		if apply("memtable-size") {
			c.MemTableSize = cfg.MemTableSize
		}
		if apply("max-memtables") {
			c.MaxMemTables = cfg.MaxMemTables
		}
		if apply("memtable-kind") {
			c.MemTableKind = cfg.MemTableKind
		}
		if apply("buffer-size") {
			c.WriteBufferSize = cfg.BufferSize
		}
	})

	if err := engineCfg.Validate(); err != nil {
		return nil, err
	}
	if err := engineCfg.SaveManifest(cfg.ConfigDir); err != nil {
		return nil, err
	}
	return engineCfg, nil
}

func setupTelemetry(enabled bool) (telemetry.Telemetry, error) {
	telCfg := telemetry.DefaultConfig()
	telCfg.LoadFromEnv()
	if enabled {
		telCfg.Enabled = true
	}
	return telemetry.New(telCfg)
}

// runInteractive starts the interactive CLI mode
func runInteractive(w *engine.WritePath, dir string) error {
	fmt.Println("Kevo ingest shell")
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".kevo_ingest_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("kevo:%s> ", dir),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		w.Close()
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	for {
		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if exit := executeCommand(w, line, os.Stdout); exit {
			break
		}
	}

	if err := w.Close(); err != nil && !errors.Is(err, engine.ErrClosed) {
		return fmt.Errorf("closing write path: %w", err)
	}
	fmt.Println("Goodbye!")
	return nil
}

// executeCommand runs one shell line and reports whether the shell should exit
func executeCommand(w *engine.WritePath, line string, out io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToUpper(parts[0])

	if strings.HasPrefix(cmd, ".") {
		switch strings.ToLower(cmd) {
		case ".help":
			fmt.Fprint(out, helpText)

		case ".exit":
			return true

		case ".flush":
			start := time.Now()
			if err := w.Flush(); err != nil {
				fmt.Fprintf(out, "Error flushing memtable: %s\n", err)
			} else {
				fmt.Fprintf(out, "MemTable frozen (%.2f ms)\n", float64(time.Since(start).Microseconds())/1000.0)
			}

		case ".stats":
			if len(parts) > 1 {
				printStats(out, w.StatsFiltered(parts[1]))
			} else {
				printStats(out, w.Stats())
			}

		case ".segments":
			if err := printSegments(out, w.Dir()); err != nil {
				fmt.Fprintf(out, "Error listing segments: %s\n", err)
			}

		case ".dump":
			if len(parts) < 2 {
				fmt.Fprintln(out, "Error: .dump requires a segment number")
				return false
			}
			seq, err := strconv.ParseUint(parts[1], 10, 64)
			if err != nil {
				fmt.Fprintf(out, "Error: invalid segment number %q\n", parts[1])
				return false
			}
			if err := dumpSegment(out, filepath.Join(w.Dir(), sstable.FileName(seq))); err != nil {
				fmt.Fprintf(out, "Error reading segment: %s\n", err)
			}

		default:
			fmt.Fprintf(out, "Unknown command: %s\n", parts[0])
		}
		return false
	}

	switch cmd {
	case "PUT":
		if len(parts) < 3 {
			fmt.Fprintln(out, "Error: PUT requires key and value arguments")
			return false
		}
		// Everything after the key is the value, spaces included
		value := strings.Join(parts[2:], " ")
		start := time.Now()
		if err := w.Put([]byte(parts[1]), []byte(value)); err != nil {
			fmt.Fprintf(out, "Error: %s\n", err)
		} else {
			fmt.Fprintf(out, "Value stored (%.2f ms)\n", float64(time.Since(start).Microseconds())/1000.0)
		}

	default:
		fmt.Fprintf(out, "Unknown command: %s\n", parts[0])
	}
	return false
}

func printStats(out io.Writer, stats map[string]interface{}) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := stats[k].(type) {
		case map[string]interface{}:
			if len(v) == 0 {
				continue
			}
			fmt.Fprintf(out, "%s:\n", k)
			inner := make([]string, 0, len(v))
			for ik := range v {
				inner = append(inner, ik)
			}
			sort.Strings(inner)
			for _, ik := range inner {
				fmt.Fprintf(out, "  %s: %v\n", ik, v[ik])
			}
		default:
			fmt.Fprintf(out, "%s: %v\n", k, v)
		}
	}
}

// describeSegment reads a whole segment and returns its entry count and the
// xxhash64 checksum of its bytes
func describeSegment(path string) (int, uint64, error) {
	reader, err := sstable.OpenReader(path)
	if err != nil {
		return 0, 0, err
	}
	defer reader.Close()

	for {
		if _, err := reader.Next(); err != nil {
			if err == io.EOF {
				break
			}
			return 0, 0, err
		}
	}
	return reader.Count(), reader.Checksum(), nil
}

func printSegments(out io.Writer, dir string) error {
	names, err := sstable.ListSegments(dir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "No segments")
		return nil
	}

	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		count, checksum, err := describeSegment(path)
		if err != nil {
			fmt.Fprintf(out, "%s  %d bytes  error: %s\n", name, info.Size(), err)
			continue
		}
		fmt.Fprintf(out, "%s  %d entries  %d bytes  xxhash64=%016x\n", name, count, info.Size(), checksum)
	}
	return nil
}

func dumpSegment(out io.Writer, path string) error {
	reader, err := sstable.OpenReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	iter := reader.NewIterator()
	count := 0
	for iter.Next() {
		fmt.Fprintf(out, "%s: %s\n", iter.Key(), iter.Value())
		count++
	}
	if err := iter.Error(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d entries\n", count)
	return nil
}
