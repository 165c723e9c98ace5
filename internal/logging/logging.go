package logging

import (
	"os"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	encoderConfig = zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	outputs = &teeSyncer{
		console: zapcore.Lock(os.Stdout),
	}
	leveler = &levelSetter{
		defaultLevel: zap.InfoLevel,
		levelers:     make(map[string]zap.AtomicLevel),
	}
)

type Leveler interface {
	SetLevel(name string, level zapcore.Level)
	GetLevel(name string) zapcore.Level
	// SetAll changes every known logger and the level given to loggers created afterwards.
	SetAll(level zapcore.Level)
}

type levelSetter struct {
	defaultLevel zapcore.Level
	levelers     map[string]zap.AtomicLevel
	mu           sync.RWMutex
}

var _ Leveler = (*levelSetter)(nil)

func GetLeveler() Leveler {
	return leveler
}

func (lw *levelSetter) SetLevel(name string, level zapcore.Level) {
	_ = lw.setLevel(name, level)
}

func (lw *levelSetter) GetLevel(name string) zapcore.Level {
	lw.mu.RLock()
	defer lw.mu.RUnlock()

	if l, ok := lw.levelers[name]; ok {
		return l.Level()
	}

	return lw.defaultLevel
}

func (lw *levelSetter) SetAll(level zapcore.Level) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	lw.defaultLevel = level
	for _, l := range lw.levelers {
		l.SetLevel(level)
	}
}

func (lw *levelSetter) setLevel(name string, level zapcore.Level) zap.AtomicLevel {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, ok := lw.levelers[name]; !ok {
		lw.levelers[name] = zap.NewAtomicLevelAt(level)
	}

	lw.levelers[name].SetLevel(level)

	return lw.levelers[name]
}

// register returns the level of an existing logger name, creating it at the default level otherwise.
func (lw *levelSetter) register(name string) zap.AtomicLevel {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if l, ok := lw.levelers[name]; ok {
		return l
	}
	l := zap.NewAtomicLevelAt(lw.defaultLevel)
	lw.levelers[name] = l
	return l
}

// teeSyncer fans every record out to the console and all registered
// outputs. Outputs can be added after loggers have been built.
type teeSyncer struct {
	mu      sync.RWMutex
	console zapcore.WriteSyncer
	outputs []output
}

// output is an extra destination; file is set when it was opened by AddOutput.
type output struct {
	ws   zapcore.WriteSyncer
	file *os.File
}

func (t *teeSyncer) Write(p []byte) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, err := t.console.Write(p)
	for _, o := range t.outputs {
		_, werr := o.ws.Write(p)
		err = multierr.Append(err, werr)
	}
	return len(p), err
}

func (t *teeSyncer) Sync() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	err := t.console.Sync()
	for _, o := range t.outputs {
		err = multierr.Append(err, o.ws.Sync())
	}
	return err
}

func (t *teeSyncer) add(o output) {
	t.mu.Lock()
	t.outputs = append(t.outputs, o)
	t.mu.Unlock()
}

func (t *teeSyncer) setConsole(ws zapcore.WriteSyncer) {
	t.mu.Lock()
	t.console = ws
	t.mu.Unlock()
}

// closeFiles detaches every file output before closing it, so later
// records never reach a closed file.
func (t *teeSyncer) closeFiles() error {
	t.mu.Lock()
	var files []*os.File
	kept := t.outputs[:0]
	for _, o := range t.outputs {
		if o.file != nil {
			files = append(files, o.file)
			continue
		}
		kept = append(kept, o)
	}
	t.outputs = kept
	t.mu.Unlock()

	var err error
	for _, f := range files {
		err = multierr.Append(err, f.Sync())
		err = multierr.Append(err, f.Close())
	}
	return err
}

// UseStderr moves console output from stdout to stderr, leaving stdout to the program.
func UseStderr() {
	outputs.setConsole(zapcore.Lock(os.Stderr))
}

// AddWriter tees all log output, including from already created loggers, to ws.
func AddWriter(ws zapcore.WriteSyncer) {
	outputs.add(output{ws: zapcore.Lock(ws)})
}

// AddOutput opens path (truncating it) and tees all log output to it until CloseOutputs.
func AddOutput(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	outputs.add(output{ws: zapcore.Lock(f), file: f})
	return nil
}

// CloseOutputs stops logging to the files opened by AddOutput and closes them.
func CloseOutputs() error {
	return outputs.closeFiles()
}

func New(name string) *zap.SugaredLogger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), outputs, leveler.register(name))
	return zap.New(core,
		zap.AddCaller(),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
		zap.AddStacktrace(zapcore.PanicLevel)).Named(name).Sugar()
}
