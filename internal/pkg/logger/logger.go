package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.SugaredLogger
	base *zap.Logger
}

func NewLogger(level, format string) *Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), lvl)
	return Wrap(zap.New(core, zap.AddCaller()))
}

func Wrap(l *zap.Logger) *Logger {
	return &Logger{SugaredLogger: l.Sugar(), base: l}
}

// Nop is used by tests.
func Nop() *Logger {
	return Wrap(zap.NewNop())
}

func (l *Logger) Zap() *zap.Logger {
	return l.base
}

func (l *Logger) SSHConnectionAttempt(method, target string) {
	l.base.Info("ssh connection attempt",
		zap.String("type", "ssh_connection"),
		zap.String("method", method),
		zap.String("target", target),
	)
}

func (l *Logger) InstallStep(step, runID string) {
	l.base.Info("install step",
		zap.String("type", "install"),
		zap.String("step", step),
		zap.String("run_id", runID),
	)
}

func (l *Logger) InstallError(step, runID string, err error) {
	l.base.Error("install step failed",
		zap.String("type", "install"),
		zap.String("step", step),
		zap.String("run_id", runID),
		zap.Error(err),
	)
}

func (l *Logger) InstallSuccess(runID, url string) {
	l.base.Info("install finished",
		zap.String("type", "install"),
		zap.String("run_id", runID),
		zap.String("url", url),
	)
}

func (l *Logger) PeerEvent(action, peerID, name string) {
	l.base.Info("peer "+action,
		zap.String("type", "peer"),
		zap.String("peer_id", peerID),
		zap.String("name", name),
	)
}
