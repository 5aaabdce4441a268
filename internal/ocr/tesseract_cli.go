package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CLIConfig configures the tesseract command-line backend.
type CLIConfig struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	TessdataDir string
}

// CLIEngine drives the tesseract binary through a Runner.
type CLIEngine struct {
	cfg    CLIConfig
	runner Runner
	logger *slog.Logger
}

// CLIOption customizes a CLIEngine.
type CLIOption func(*CLIEngine)

// WithRunner swaps the command runner, mainly for tests.
func WithRunner(r Runner) CLIOption {
	return func(e *CLIEngine) {
		if r != nil {
			e.runner = r
		}
	}
}

func NewCLIEngine(cfg CLIConfig, logger *slog.Logger, opts ...CLIOption) *CLIEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	e := &CLIEngine{cfg: cfg, runner: ExecRunner{}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *CLIEngine) Name() string { return "tesseract-cli" }

// NewWorker allocates a scratch directory that lives until Terminate.
func (e *CLIEngine) NewWorker(_ context.Context) (Worker, error) {
	dir, err := os.MkdirTemp("", "ocr-worker-*")
	if err != nil {
		return nil, fmt.Errorf("create worker dir: %w", err)
	}
	e.logger.Debug("ocr worker created", "engine", e.Name(), "dir", dir)
	return &cliWorker{
		engine: e,
		dir:    dir,
		mode:   -1,
		params: make(map[string]string),
	}, nil
}

type cliWorker struct {
	engine *CLIEngine
	dir    string

	available   map[string]struct{}
	lang        string
	mode        EngineMode
	params      map[string]string
	initialized bool
	terminated  bool
}

func (w *cliWorker) LoadLanguage(ctx context.Context, lang string) error {
	if w.terminated {
		return ErrWorkerTerminated
	}
	if lang == "" {
		return fmt.Errorf("language is required")
	}
	if w.available == nil {
		args := []string{"--list-langs"}
		if w.engine.cfg.TessdataDir != "" {
			args = append(args, "--tessdata-dir", w.engine.cfg.TessdataDir)
		}
		out, errb, err := w.engine.runner.Run(ctx, w.engine.cfg.Tesseract, w.engine.logger, args...)
		if err != nil {
			return fmt.Errorf("tesseract --list-langs: %w: %s", err, Truncate(string(errb), 512))
		}
		// older builds print the list on stderr
		w.available = parseLanguageList(string(out) + "\n" + string(errb))
	}
	for _, l := range strings.Split(lang, "+") {
		if _, ok := w.available[l]; !ok {
			return fmt.Errorf("language %q is not installed", l)
		}
	}
	w.lang = lang
	return nil
}

func (w *cliWorker) Initialize(_ context.Context, lang string, mode EngineMode) error {
	if w.terminated {
		return ErrWorkerTerminated
	}
	if w.lang == "" || lang != w.lang {
		return fmt.Errorf("language %q was not loaded", lang)
	}
	w.mode = mode
	w.initialized = true
	return nil
}

func (w *cliWorker) SetParameters(_ context.Context, params map[string]string) error {
	if w.terminated {
		return ErrWorkerTerminated
	}
	for k, v := range params {
		if k == ParamPageSegMode {
			if _, err := strconv.Atoi(v); err != nil {
				return fmt.Errorf("invalid %s %q", ParamPageSegMode, v)
			}
		}
		w.params[k] = v
	}
	return nil
}

func (w *cliWorker) Recognize(ctx context.Context, payload Payload) (Result, error) {
	if w.terminated {
		return Result{}, ErrWorkerTerminated
	}
	if !w.initialized {
		return Result{}, fmt.Errorf("worker is not initialized")
	}
	if len(payload.Data) == 0 {
		return Result{}, fmt.Errorf("empty payload")
	}
	start := time.Now()

	in := filepath.Join(w.dir, "input"+payloadExt(payload.MIMEType))
	if err := os.WriteFile(in, payload.Data, 0o600); err != nil {
		return Result{}, fmt.Errorf("write payload: %w", err)
	}
	defer func() { _ = os.Remove(in) }()

	// tesseract <file> stdout -l <lang> [--tessdata-dir d] [--oem n] [--psm n] [-c k=v]...
	out, errb, err := w.engine.runner.Run(ctx, w.engine.cfg.Tesseract, w.engine.logger, w.recognizeArgs(in)...)
	if err != nil {
		return Result{}, fmt.Errorf("tesseract: %w: %s", err, Truncate(string(errb), 512))
	}
	return Result{Text: string(out), Language: w.lang, Duration: time.Since(start)}, nil
}

func (w *cliWorker) recognizeArgs(in string) []string {
	args := []string{in, "stdout", "-l", w.lang}
	if w.engine.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", w.engine.cfg.TessdataDir)
	}
	if w.mode >= 0 {
		args = append(args, "--oem", strconv.Itoa(int(w.mode)))
	}
	if psm, ok := w.params[ParamPageSegMode]; ok {
		args = append(args, "--psm", psm)
	}
	keys := make([]string, 0, len(w.params))
	for k := range w.params {
		if k != ParamPageSegMode {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-c", k+"="+w.params[k])
	}
	return args
}

// Terminate removes the scratch directory. Safe to call more than once.
func (w *cliWorker) Terminate() error {
	if w.terminated {
		return nil
	}
	w.terminated = true
	if err := os.RemoveAll(w.dir); err != nil {
		w.engine.logger.Warn("failed to remove worker dir", "dir", w.dir, "error", err)
		return err
	}
	w.engine.logger.Debug("ocr worker terminated", "dir", w.dir)
	return nil
}

func parseLanguageList(s string) map[string]struct{} {
	langs := make(map[string]struct{})
	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "List of available languages") || strings.Contains(ln, " ") {
			continue
		}
		langs[ln] = struct{}{}
	}
	return langs
}

func payloadExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	default:
		return ".img"
	}
}
