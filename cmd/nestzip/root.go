package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/meigma/nestzip"
	nzhttp "github.com/meigma/nestzip/http"
	"github.com/meigma/nestzip/locator"
)

const envPrefix = "NESTZIP"

// Configuration keys. Each is also a persistent flag of the same name and
// an environment variable such as NESTZIP_LOG_LEVEL.
const (
	keyLogLevel        = "log.level"
	keyLogFormat       = "log.format"
	keyLogFile         = "log.file"
	keyLogMaxSize      = "log.max-size"
	keyLogMaxBackups   = "log.max-backups"
	keyHTTPTimeout     = "http.timeout"
	keyHTTPHeader      = "http.header"
	keyHTTPConditional = "http.conditional"
	keyMaxEntrySize    = "archive.max-entry-size"
)

type cli struct {
	fs      afero.Fs
	v       *viper.Viper
	cfgFile string

	logger    *slog.Logger
	logCloser io.Closer
}

func newRootCmd(fsys afero.Fs) *cobra.Command {
	c := &cli{fs: fsys, v: viper.New()}

	root := &cobra.Command{
		Use:   "nestzip",
		Short: "Inspect resources inside nested ZIP-format containers",
		Long: `nestzip reads entries from ZIP-format containers, including containers
stored inside other containers, without extracting anything to disk.

Locators join a root and entry names with "!/":
  nestzip ls   /opt/app.pkg
  nestzip cat  /opt/app.pkg!/BOOT-INF/lib/dep.jar!/config.yaml
  nestzip manifest https://repo.example.com/app.jar`,
		Version:            version,
		SilenceUsage:       true,
		PersistentPreRunE:  c.setup,
		PersistentPostRunE: c.teardown,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.String(keyLogLevel, "warn", "log level (debug, info, warn, error)")
	flags.String(keyLogFormat, "text", "log format (text, json)")
	flags.String(keyLogFile, "", "write logs to this file instead of stderr")
	flags.Int(keyLogMaxSize, 10, "rotate the log file after this many megabytes")
	flags.Int(keyLogMaxBackups, 3, "rotated log files to keep")
	flags.Duration(keyHTTPTimeout, 30*time.Second, "timeout for each HTTP request")
	flags.StringSlice(keyHTTPHeader, nil, `extra HTTP request header as "Key: Value" (repeatable)`)
	flags.Bool(keyHTTPConditional, false, "detect remote containers that change while being read")
	flags.Uint64(keyMaxEntrySize, nestzip.DefaultMaxEntrySize, "largest entry that may be read, in bytes")
	if err := c.v.BindPFlags(flags); err != nil {
		panic(err)
	}

	root.AddCommand(
		newLsCmd(c),
		newCatCmd(c),
		newManifestCmd(c),
		newStatCmd(c),
		newDigestCmd(c),
	)
	return root
}

// setup loads configuration and builds the logger.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	c.v.SetFs(c.fs)
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", c.cfgFile, err)
		}
	}

	logger, closer, err := newLogger(c.v, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c.logger, c.logCloser = logger, closer
	if used := c.v.ConfigFileUsed(); used != "" {
		c.logger.Debug("loaded config", "path", used)
	}
	return nil
}

func (c *cli) teardown(*cobra.Command, []string) error {
	if c.logCloser == nil {
		return nil
	}
	return c.logCloser.Close()
}

func newLogger(v *viper.Viper, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString(keyLogLevel))); err != nil {
		return nil, nil, fmt.Errorf("invalid %s: %w", keyLogLevel, err)
	}

	w := stderr
	var closer io.Closer
	if file := v.GetString(keyLogFile); file != "" {
		lj := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    v.GetInt(keyLogMaxSize),
			MaxBackups: v.GetInt(keyLogMaxBackups),
			Compress:   true,
		}
		w, closer = lj, lj
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch format := v.GetString(keyLogFormat); format {
	case "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		if closer != nil {
			_ = closer.Close() //nolint:errcheck // the format error is more useful
		}
		return nil, nil, fmt.Errorf("invalid %s %q: want text or json", keyLogFormat, format)
	}
	return slog.New(h), closer, nil
}

func (c *cli) resolver() (*locator.Resolver, error) {
	headers, err := parseHeaders(c.v.GetStringSlice(keyHTTPHeader))
	if err != nil {
		return nil, err
	}
	httpOpts := []nzhttp.Option{
		nzhttp.WithTimeout(c.v.GetDuration(keyHTTPTimeout)),
		nzhttp.WithHeaders(headers),
		nzhttp.WithLogger(c.logger),
	}
	if c.v.GetBool(keyHTTPConditional) {
		httpOpts = append(httpOpts, nzhttp.WithConditionalHeaders())
	}
	remote := locator.HTTPOpener(httpOpts...)

	return locator.NewResolver(
		locator.WithFs(c.fs),
		locator.WithLogger(c.logger),
		locator.WithOpener("http", remote),
		locator.WithOpener("https", remote),
		locator.WithArchiveOptions(nestzip.WithMaxEntrySize(c.v.GetUint64(keyMaxEntrySize))),
	), nil
}

// withResource resolves address, runs fn and releases everything it opened.
// An address without a separator names the root container itself.
func (c *cli) withResource(address string, fn func(*locator.Resource) error) (err error) {
	if !strings.Contains(address, locator.Separator) {
		address += locator.Separator
	}
	r, err := c.resolver()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, r.Close())
	}()

	res, err := r.Resolve(address)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, res.Close())
	}()
	return fn(res)
}

func parseHeaders(values []string) (http.Header, error) {
	headers := make(http.Header, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid %s %q: want \"Key: Value\"", keyHTTPHeader, v)
		}
		headers.Add(key, strings.TrimSpace(value))
	}
	return headers, nil
}
