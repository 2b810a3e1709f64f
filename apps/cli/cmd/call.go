package cmd

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ws/packages/async"
	"github.com/abdul-hamid-achik/ws/packages/history"
	"github.com/abdul-hamid-achik/ws/packages/http"
	"github.com/abdul-hamid-achik/ws/packages/json"
	"github.com/abdul-hamid-achik/ws/packages/output"
	"github.com/abdul-hamid-achik/ws/packages/params"
	"github.com/abdul-hamid-achik/ws/packages/ws"
)

const (
	verbGet    = ws.VerbGet
	verbPost   = ws.VerbPost
	verbPut    = ws.VerbPut
	verbDelete = ws.VerbDelete
)

// callOptions holds the flags of one call command
type callOptions struct {
	params     []string
	json       bool
	file       string
	void       bool
	schemaPath string
	errorField string
}

func newCallCmd(global *globalOptions, verb ws.Verb) *cobra.Command {
	opts := &callOptions{}
	name := strings.ToLower(string(verb))
	cmd := &cobra.Command{
		Use:   name + " <url>",
		Short: fmt.Sprintf("Send a %s call and print the JSON response", verb),
		Long: fmt.Sprintf(`Send a %s call to url, resolved against the base URL, and print the
parsed JSON response.

Parameters are given as key=value (a string) or key:=value (raw JSON).
GET and DELETE send them in the query string, POST and PUT in the body.

Examples:
  ws %[2]s /users -b https://api.example.com
  ws %[2]s /users -p name=Ada -p admin:=true --json
  ws %[2]s https://api.example.com/status --void`, verb, name),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, global, opts, verb, args[0])
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.params, "param", "p", nil, "Parameter as key=value or key:=json (repeatable)")
	f.BoolVar(&opts.void, "void", false, "Check the response but print no body")
	f.StringVar(&opts.schemaPath, "schema", "", "JSON Schema file the response must satisfy")
	f.StringVar(&opts.errorField, "error-field", "", "Fail the call when the response carries a value at this path")
	if verb == ws.VerbPost || verb == ws.VerbPut {
		f.BoolVar(&opts.json, "json", false, "Send parameters as a JSON body")
		f.StringVarP(&opts.file, "file", "f", "", "Send a multipart body with a file part, as field=path[;type=mime]")
	}
	return cmd
}

func runCall(cmd *cobra.Command, global *globalOptions, opts *callOptions, verb ws.Verb, url string) error {
	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}
	formatter, err := output.NewFormatter(global.output, cmd.OutOrStdout(), cfg.GetNoColor())
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	p, err := parseParams(opts.params)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	// results are handled on a queue of their own, as an application's
	// main queue would
	queue := async.NewSerialQueue()
	defer queue.Close()

	activity := &ws.ActivityCounter{OnChange: func(active bool) {
		logger.Debug("network activity", zap.Bool("active", active))
	}}
	w, err := global.newClient(cfg, logger, ws.WithExecutor(queue), ws.WithActivityIndicator(activity))
	if err != nil {
		return err
	}

	r := w.DefaultRequest().Configure(verb, url, p)
	if err := opts.configure(r); err != nil {
		return withExitCode(ExitUsageError, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	result := &output.Result{Method: string(verb), URL: r.URL(), Void: opts.void}
	printed := make(chan error, 1)

	call := r.Fetch(context.Background()).ReceiveOn(w.Executor)
	call.Then(func(body json.JSON) {
		result.Body = body
	}).OnError(func(err error) {
		result.Err = err
	}).Finally(func() {
		result.Duration = time.Since(start)
		printed <- formatter.Format(result)
	})

	select {
	case err := <-printed:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		call.Cancel()
		return withExitCode(ExitCallFailure, async.ErrCanceled)
	}

	recordHistory(cfg.History, result, logger)

	if result.Err != nil {
		return callError(result.Err)
	}
	return nil
}

// recordHistory appends the call to the history file, when one is
// configured. A history that cannot be written only warns.
func recordHistory(path string, result *output.Result, logger *zap.Logger) {
	if path == "" {
		return
	}
	store, err := history.Open(path)
	if err != nil {
		logger.Warn("history unavailable", zap.Error(err))
		return
	}
	defer store.Close()

	entry := history.EntryFor(result.Method, result.URL, result.Err, result.Duration)
	if _, err := store.Record(context.Background(), entry); err != nil {
		logger.Warn("history not recorded", zap.Error(err))
	}
}

// configure applies the per-call flags to r
func (o *callOptions) configure(r *ws.Request) error {
	if o.json {
		r.SetEncoding(http.EncodingJSON)
	}
	if o.void {
		r.SetReturnsJSON(false)
	}
	if o.file != "" {
		part, err := parseFilePart(o.file)
		if err != nil {
			return err
		}
		r.SetPart(part.Name, part.Data, part.FileName, part.MimeType)
	}
	if o.schemaPath != "" {
		data, err := os.ReadFile(o.schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema: %w", err)
		}
		schema, err := ws.CompileSchema(data)
		if err != nil {
			return fmt.Errorf("invalid schema %s: %w", o.schemaPath, err)
		}
		r.SetSchema(schema)
	}
	if o.errorField != "" {
		r.SetErrorHandler(errorFieldHandler(o.errorField))
	}
	return nil
}

// errorFieldHandler reports an application error when body holds a non-null
// value at path. A string value becomes the error message.
func errorFieldHandler(path string) ws.ErrorHandler {
	return func(body json.JSON) error {
		v, ok := body.Get(path)
		if !ok || v.IsNull() {
			return nil
		}
		if msg, ok := v.AsString(); ok {
			return errors.New(msg)
		}
		return fmt.Errorf("%s: %s", path, v.Raw())
	}
}

// parseParams reads key=value and key:=json pairs, keeping their order
func parseParams(pairs []string) (*params.Params, error) {
	p := params.New()
	for _, pair := range pairs {
		if key, raw, ok := strings.Cut(pair, ":="); ok && !strings.Contains(key, "=") {
			v, err := json.Parse([]byte(raw))
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", key, err)
			}
			if err := p.Set(key, v); err != nil {
				return nil, err
			}
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q (want key=value or key:=json)", pair)
		}
		if err := p.Set(key, value); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// parseFilePart reads field=path[;type=mime]. Without a type the MIME type
// is guessed from the file extension.
func parseFilePart(arg string) (*http.Part, error) {
	field, rest, ok := strings.Cut(arg, "=")
	if !ok || field == "" || rest == "" {
		return nil, fmt.Errorf("invalid file %q (want field=path[;type=mime])", arg)
	}
	path, mimeType := rest, ""
	if i := strings.LastIndex(rest, ";type="); i >= 0 {
		path, mimeType = rest[:i], rest[i+len(";type="):]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(path))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return &http.Part{Name: field, Data: data, FileName: filepath.Base(path), MimeType: mimeType}, nil
}
