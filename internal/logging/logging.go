package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfg = zap.Config{
		Level:       zap.NewAtomicLevelAt(zap.InfoLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
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
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	leveler = &levelSetter{
		levelers:     make(map[string]zap.AtomicLevel),
		defaultLevel: zap.InfoLevel,
	}
)

// Leveler changes the level of named loggers at runtime.
type Leveler interface {
	SetLevel(name string, level zapcore.Level)
	GetLevel(name string) zapcore.Level
	SetAllLevels(level zapcore.Level)
}

type levelSetter struct {
	mu           sync.RWMutex
	levelers     map[string]zap.AtomicLevel
	defaultLevel zapcore.Level
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

// SetAllLevels changes every existing logger and the level of loggers created
// afterwards.
func (lw *levelSetter) SetAllLevels(level zapcore.Level) {
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

// New returns a logger named after a package. Loggers sharing a name share
// their level.
func New(name string) *zap.SugaredLogger {
	c := cfg
	c.Level = leveler.register(name)
	return zap.Must(c.Build(zap.AddStacktrace(zapcore.PanicLevel))).Named(name).Sugar()
}
