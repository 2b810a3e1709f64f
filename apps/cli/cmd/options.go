package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/abdul-hamid-achik/ws/packages/auth"
	"github.com/abdul-hamid-achik/ws/packages/auth/oauth2"
	"github.com/abdul-hamid-achik/ws/packages/core/config"
	"github.com/abdul-hamid-achik/ws/packages/ws"
)

// globalOptions holds the persistent flags shared by the call commands
type globalOptions struct {
	configPath string
	baseURL    string
	headers    []string
	keyPath    string
	logLevel   string
	encoding   string
	timeout    time.Duration
	retries    int
	proxy      string
	insecure   bool
	requestID  bool
	output     string
	noColor    bool
	history    string

	user     string
	bearer   string
	digest   string
	awsSigV4 string
	oauth2   string
}

func (o *globalOptions) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", getEnvString("WS_CONFIG", ""), "Path to config file (env: WS_CONFIG)")
	f.StringVarP(&o.baseURL, "base-url", "b", getEnvString("WS_BASE_URL", ""), "Base URL prepended to every call URL (env: WS_BASE_URL)")
	f.StringArrayVarP(&o.headers, "header", "H", nil, `Default header as "Name: value" (repeatable)`)
	f.StringVar(&o.keyPath, "key-path", getEnvString("WS_KEY_PATH", ""), "Dotted path to the array a collection response must carry (env: WS_KEY_PATH)")
	f.StringVar(&o.logLevel, "log-level", getEnvString("WS_LOG_LEVEL", ""), "Call logging: off, calls or responses (env: WS_LOG_LEVEL)")
	f.StringVar(&o.encoding, "encoding", getEnvString("WS_ENCODING", ""), "Body parameter encoding: url or json (env: WS_ENCODING)")
	f.DurationVar(&o.timeout, "timeout", 0, "Per-attempt timeout (e.g. 5s)")
	f.IntVar(&o.retries, "retries", getEnvInt("WS_RETRIES", 0), "Retry failed exchanges this many times (env: WS_RETRIES)")
	f.StringVar(&o.proxy, "proxy", getEnvString("WS_PROXY", ""), "Proxy URL (env: WS_PROXY)")
	f.BoolVarP(&o.insecure, "insecure", "k", false, "Skip TLS certificate verification")
	f.BoolVar(&o.requestID, "request-id", getEnvBool("WS_REQUEST_ID", false), "Tag every attempt with an X-Request-ID header (env: WS_REQUEST_ID)")
	f.StringVarP(&o.output, "output", "o", getEnvString("WS_OUTPUT", "console"), "Output format: console or json (env: WS_OUTPUT)")
	f.BoolVar(&o.noColor, "no-color", getEnvBool("NO_COLOR", false), "Disable colored output (env: NO_COLOR)")
	f.StringVar(&o.history, "history", getEnvString("WS_HISTORY", ""), "SQLite file to record calls in (env: WS_HISTORY)")

	f.StringVarP(&o.user, "user", "u", "", "Basic authentication as user:password")
	f.StringVar(&o.bearer, "bearer", getEnvString("WS_TOKEN", ""), "Bearer token (env: WS_TOKEN)")
	f.StringVar(&o.digest, "digest", "", "Digest authentication as user:password")
	f.StringVar(&o.awsSigV4, "aws-sigv4", "", "Sign calls with AWS SigV4 as region:service, keys from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")
	f.StringVar(&o.oauth2, "oauth2", getEnvString("WS_OAUTH2", ""), `OAuth2 as "grant tokenUrl clientId clientSecret [...]" (env: WS_OAUTH2)`)
}

// flagConfig turns the flags into a Config. Unset flags stay at their zero
// value, so merging it over a file config only overrides what was given.
func (o *globalOptions) flagConfig() (*config.Config, error) {
	cfg := &config.Config{
		BaseURL:           o.baseURL,
		CollectionKeyPath: o.keyPath,
		LogLevel:          o.logLevel,
		Encoding:          o.encoding,
		Timeout:           int(o.timeout / time.Millisecond),
		Retries:           o.retries,
		Proxy:             o.proxy,
		History:           o.history,
	}
	if len(o.headers) > 0 {
		cfg.Headers = make(map[string]string, len(o.headers))
		for _, h := range o.headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("invalid header %q (want \"Name: value\")", h)
			}
			cfg.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	if o.insecure {
		cfg.ValidateSSL = config.BoolPtr(false)
	}
	if o.requestID {
		cfg.RequestID = config.BoolPtr(true)
	}
	if o.noColor {
		cfg.NoColor = config.BoolPtr(true)
	}
	return cfg, nil
}

// loadConfig reads the config file and merges the flags over it
func (o *globalOptions) loadConfig() (*config.Config, error) {
	fileCfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, configError(err)
	}
	flagCfg, err := o.flagConfig()
	if err != nil {
		return nil, withExitCode(ExitUsageError, err)
	}
	cfg := fileCfg.Merge(flagCfg)
	if err := cfg.Validate(); err != nil {
		return nil, configError(err)
	}
	return cfg, nil
}

// newLogger returns the logger call logging goes to: stderr, human readable
func newLogger(cfg *config.Config) *zap.Logger {
	level, _ := ws.ParseLogLevel(cfg.LogLevel)
	if level == ws.LogOff {
		return zap.NewNop()
	}
	zc := zap.NewDevelopmentConfig()
	zc.OutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true
	zc.EncoderConfig.TimeKey = ""
	if !cfg.GetNoColor() {
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newClient builds the client for one command run
func (o *globalOptions) newClient(cfg *config.Config, logger *zap.Logger, opts ...ws.Option) (*ws.WS, error) {
	w, err := cfg.NewClient(logger, opts...)
	if err != nil {
		return nil, configError(err)
	}
	adapter, retrier, err := o.authHooks(w)
	if err != nil {
		return nil, withExitCode(ExitUsageError, err)
	}
	if adapter != nil {
		w.RequestAdapter = ws.ChainAdapters(w.RequestAdapter, adapter)
	}
	if retrier != nil {
		w.RequestRetrier = ws.ChainRetriers(retrier, w.RequestRetrier)
	}
	return w, nil
}

// authHooks returns the adapter and retrier for the chosen authentication.
// At most one scheme may be given.
func (o *globalOptions) authHooks(w *ws.WS) (ws.Adapter, ws.Retrier, error) {
	given := 0
	for _, v := range []string{o.user, o.bearer, o.digest, o.awsSigV4, o.oauth2} {
		if v != "" {
			given++
		}
	}
	if given > 1 {
		return nil, nil, fmt.Errorf("only one of --user, --bearer, --digest, --aws-sigv4 and --oauth2 may be given")
	}

	switch {
	case o.user != "":
		if !strings.Contains(o.user, ":") {
			return nil, nil, fmt.Errorf("--user must be user:password")
		}
		basic := "Basic " + base64.StdEncoding.EncodeToString([]byte(o.user))
		return ws.StaticHeaders(map[string]string{"Authorization": basic}), nil, nil

	case o.bearer != "":
		token := o.bearer
		return ws.BearerToken(func(ctx context.Context) (string, error) { return token, nil }), nil, nil

	case o.digest != "":
		user, pass, ok := strings.Cut(o.digest, ":")
		if !ok {
			return nil, nil, fmt.Errorf("--digest must be user:password")
		}
		d := auth.NewDigest(user, pass)
		return d, d, nil

	case o.awsSigV4 != "":
		region, service, ok := strings.Cut(o.awsSigV4, ":")
		if !ok || region == "" || service == "" {
			return nil, nil, fmt.Errorf("--aws-sigv4 must be region:service")
		}
		creds := auth.AWSCredentials{
			AccessKey:    os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey:    os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken: os.Getenv("AWS_SESSION_TOKEN"),
			Region:       region,
			Service:      service,
		}
		if creds.AccessKey == "" || creds.SecretKey == "" {
			return nil, nil, fmt.Errorf("--aws-sigv4 needs AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")
		}
		return auth.NewAWSSigner(creds), nil, nil

	case o.oauth2 != "":
		oc, err := oauth2.ParseConfig(strings.Fields(o.oauth2))
		if err != nil {
			return nil, nil, err
		}
		h := oauth2.NewHandler(oauth2.NewProvider(oc, w.Transport))
		return h, h, nil
	}
	return nil, nil, nil
}
