// Command urdf-loader logs a URDF or xacro robot description as a stream of
// scene records. It follows the external data loader protocol: records go to
// stdout and exit code 66 tells the host the file is not ours.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"urdf-scene-logger/internal/config"
	"urdf-scene-logger/internal/pkgpath"
	"urdf-scene-logger/internal/report"
	"urdf-scene-logger/internal/rrlog"
	"urdf-scene-logger/internal/scene"
	"urdf-scene-logger/internal/texture"
	"urdf-scene-logger/internal/urdf"
)

const (
	exitOK           = 0
	exitFailure      = 1
	exitIncompatible = 66
)

var errIncompatible = errors.New("incompatible input")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// tokenList collects every occurrence of a repeatable flag.
type tokenList []string

func (l *tokenList) String() string { return strings.Join(*l, ",") }

func (l *tokenList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type options struct {
	path string

	applicationID       string
	openedApplicationID string
	recordingID         string
	openedRecordingID   string
	prefix              string
	prefixSet           bool
	static              bool
	times               tokenList
	sequences           tokenList

	configFile string
	verbose    bool
	flags      config.Flags
}

// errNoFile means the host gave no path; like a path we cannot read, that
// is reported as incompatible.
var errNoFile = errors.New("no file given")

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("urdf-loader", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: urdf-loader <file.urdf|file.xacro> [flags]")
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.applicationID, "application-id", "", "Application ID (default: the file path)")
	fs.StringVar(&opts.openedApplicationID, "opened-application-id", "", "Application ID recommended by the host")
	fs.StringVar(&opts.recordingID, "recording-id", "", "Recording ID (default: random UUID)")
	fs.StringVar(&opts.openedRecordingID, "opened-recording-id", "", "Recording ID recommended by the host")
	fs.StringVar(&opts.prefix, "entity-path-prefix", "", "Prefix for all entity paths (default: the file name)")
	fs.BoolVar(&opts.static, "static", false, "Mark all records static")
	fs.Var(&opts.times, "time", "Timeline in seconds, name=seconds (repeatable)")
	fs.Var(&opts.sequences, "sequence", "Sequence timeline, name=integer (repeatable)")

	fs.StringVar(&opts.configFile, "config", "", "Path to a .json, .toml or .yaml config file")
	fs.StringVar(&opts.flags.Format, "format", "", "Output encoding: binary or json (default: binary)")
	fs.StringVar(&opts.flags.Connect, "connect", "", "Send records to a websocket URL instead of stdout")
	fs.StringVar(&opts.flags.Manifest, "manifest", "", "Write a JSON report of every visual to this file")
	fs.StringVar(&opts.flags.Xacro, "xacro", "", "xacro executable (default: xacro on PATH)")
	fs.BoolVar(&opts.flags.KeepGoing, "keep-going", false, "Skip visuals that fail instead of aborting")
	fs.BoolVar(&opts.flags.ViewCoordinates, "view-coordinates", false, "Log right-handed Z-up view coordinates at the prefix root")
	fs.IntVar(&opts.flags.MaxTextureSize, "max-texture-size", 0, "Downscale textures larger than N pixels (default: no limit)")
	fs.IntVar(&opts.flags.Workers, "workers", 0, "Mesh decoding goroutines (default: 1)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Debug logging on stderr")

	// The host passes the path first, so flags and the positional argument
	// may be interleaved.
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	if len(positional) == 0 {
		fs.Usage()
		return nil, errNoFile
	}
	if len(positional) != 1 {
		fs.Usage()
		return nil, fmt.Errorf("expected exactly one file, got %d", len(positional))
	}
	opts.path = positional[0]
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "entity-path-prefix" {
			opts.prefixSet = true
		}
	})
	return opts, nil
}

// checkCompatible rejects inputs another loader should handle.
func checkCompatible(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", errIncompatible, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", errIncompatible, path)
	}
	if !urdf.Supported(path) {
		return fmt.Errorf("%w: %s is not a .urdf or .xacro file", errIncompatible, path)
	}
	return nil
}

// parseTimeToken splits "name=value". Tokens without exactly one "=" are
// rejected.
func parseTimeToken(tok string) (name, value string, ok bool) {
	parts := strings.Split(tok, "=")
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// applyTimelines sets every --time timeline, then every --sequence one.
// Malformed tokens are skipped.
func applyTimelines(s *rrlog.Stream, times, sequences []string, log *slog.Logger) {
	for _, tok := range times {
		name, v, ok := parseTimeToken(tok)
		if !ok {
			log.Debug("skipping malformed --time", "token", tok)
			continue
		}
		seconds, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Debug("skipping malformed --time", "token", tok, "err", err)
			continue
		}
		s.SetTimeSeconds(name, seconds)
	}
	for _, tok := range sequences {
		name, v, ok := parseTimeToken(tok)
		if !ok {
			log.Debug("skipping malformed --sequence", "token", tok)
			continue
		}
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Debug("skipping malformed --sequence", "token", tok, "err", err)
			continue
		}
		s.SetTimeSequence(name, seq)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func openSink(cfg config.Config, info rrlog.StreamInfo, stdout io.Writer) (rrlog.Sink, error) {
	if cfg.Connect != "" {
		return rrlog.DialWebSocket(cfg.Connect, info)
	}
	if cfg.Format == config.FormatJSON {
		return rrlog.NewJSONEncoder(stdout, info), nil
	}
	return rrlog.NewEncoder(stdout, info), nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if errors.Is(err, errNoFile) {
		return exitIncompatible
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	// Nothing may be written to stdout before this check passes.
	if err := checkCompatible(opts.path); err != nil {
		if opts.verbose {
			fmt.Fprintf(stderr, "%v\n", err)
		}
		return exitIncompatible
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var cfg config.Config
	if opts.configFile != "" {
		cfg, err = config.Load(opts.configFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error loading config: %v\n", err)
			return exitFailure
		}
	}
	if err := cfg.Resolve(opts.flags); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	start := time.Now()

	doc, err := urdf.Load(opts.path, urdf.XacroCommand{Command: cfg.Xacro, Logger: logger})
	if err != nil {
		logger.Error("load robot description", "path", opts.path, "err", err)
		return exitFailure
	}
	logger.Debug("robot description loaded", "name", doc.Name, "links", len(doc.Links), "joints", len(doc.Joints))

	info := rrlog.StreamInfo{
		ApplicationID: firstNonEmpty(opts.applicationID, opts.openedApplicationID, opts.path),
		RecordingID:   firstNonEmpty(opts.recordingID, opts.openedRecordingID),
	}
	if info.RecordingID == "" {
		info.RecordingID = uuid.NewString()
	}
	prefix := filepath.Base(opts.path)
	if opts.prefixSet {
		prefix = opts.prefix
	}

	sink, err := openSink(cfg, info, stdout)
	if err != nil {
		logger.Error("open output", "err", err)
		return exitFailure
	}
	stream := rrlog.NewStream(sink, opts.static)
	if !opts.static {
		applyTimelines(stream, opts.times, opts.sequences, logger)
	}

	rep := &report.Report{Document: opts.path, ApplicationID: info.ApplicationID, RecordingID: info.RecordingID}
	walker, err := scene.NewWalker(doc, scene.Options{
		Prefix:          prefix,
		BaseDir:         filepath.Dir(opts.path),
		Resolver:        pkgpath.New(cfg.Packages, cfg.ROSPackagePath, cfg.AmentPrefixPath),
		Textures:        texture.NewCache(cfg.MaxTextureSize),
		Workers:         cfg.Workers,
		KeepGoing:       cfg.KeepGoing,
		ViewCoordinates: cfg.ViewCoordinates,
		Report:          rep,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("walk robot description", "path", opts.path, "err", err)
		return exitFailure
	}

	walkErr := walker.Log(stream)
	closeErr := stream.Close()

	if cfg.Manifest != "" {
		if err := report.WriteManifest(cfg.Manifest, rep); err != nil {
			logger.Warn("manifest write failed", "err", err)
		} else {
			logger.Debug("manifest written", "path", cfg.Manifest)
		}
	}

	ok, failed := rep.Counts()
	logger.Info("done", "path", opts.path, "visuals", ok, "failed", failed, "elapsed", time.Since(start).Round(time.Millisecond))

	if walkErr != nil {
		logger.Error("log robot description", "path", opts.path, "err", walkErr)
		return exitFailure
	}
	if closeErr != nil {
		logger.Error("close output", "err", closeErr)
		return exitFailure
	}
	return exitOK
}
