package diag

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level 沿用四级：debug|info|warn|error。
type Level = zapcore.Level

// Logger 为结构化日志器：zap JSON 单行事件，字段固定为
// level, ts, corr_id, comp, stage, code, dur_ms, count, run, msg, kv。
type Logger struct {
	z      *zap.Logger
	level  zap.AtomicLevel
	corrID string
	closer io.Closer
}

// NewLogger 以 level 初始化，写入 logs/gridnews-current.log（10MiB 轮转）。
func NewLogger(corrID, level string) *Logger {
	return NewLoggerDir(corrID, level, "logs")
}

// NewLoggerDir 同 NewLogger，dir 为空时写 stderr。
func NewLoggerDir(corrID, level, dir string) *Logger {
	if strings.TrimSpace(dir) == "" {
		return NewLoggerTo(corrID, level, zapcore.Lock(os.Stderr))
	}
	rf := NewRotatingFile(dir, 10*1024*1024)
	l := NewLoggerTo(corrID, level, rf)
	l.closer = rf
	return l
}

// NewLoggerTo 写入任意 WriteSyncer（测试用 zaptest/observer 或 buffer）。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	lv := zap.NewAtomicLevelAt(parseLevel(level))
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LevelKey:       "level",
		TimeKey:        "ts",
		MessageKey:     "msg",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.MillisDurationEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	})
	core := zapcore.NewCore(enc, ws, lv)
	z := zap.New(core).With(zap.String("corr_id", corrID))
	return &Logger{z: z, level: lv, corrID: corrID}
}

// Nop 返回丢弃一切的日志器。
func Nop() *Logger {
	return &Logger{z: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.ErrorLevel)}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// CorrID 返回关联 ID。
func (l *Logger) CorrID() string { return l.corrID }

// SetLevel 运行期调整级别。
func (l *Logger) SetLevel(level string) { l.level.SetLevel(parseLevel(level)) }

// Sync 刷新并关闭文件 sink。
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// event 为一条事件的可选字段。
type event struct {
	comp  string
	stage string // start|finish|error|warn
	code  string
	dur   int64
	count int64
	run   string
	kv    map[string]string
}

func (l *Logger) log(lv zapcore.Level, msg string, ev event) {
	if l == nil || l.z == nil {
		return
	}
	ce := l.z.Check(lv, msg)
	if ce == nil {
		return
	}
	fs := make([]zap.Field, 0, 7)
	fs = append(fs, zap.String("comp", ev.comp), zap.String("stage", ev.stage))
	if ev.code != "" {
		fs = append(fs, zap.String("code", ev.code))
	}
	if ev.dur > 0 {
		fs = append(fs, zap.Int64("dur_ms", ev.dur))
	}
	if ev.count > 0 {
		fs = append(fs, zap.Int64("count", ev.count))
	}
	if ev.run != "" {
		fs = append(fs, zap.String("run", ev.run))
	}
	if len(ev.kv) > 0 {
		fs = append(fs, zap.Any("kv", ev.kv))
	}
	ce.Write(fs...)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "start"})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 run 的 start。
func (l *Logger) StartWith(comp, msg, run string) *Timer {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "start", run: run})
	return &Timer{l: l, comp: comp, run: run, t0: time.Now()}
}

// StartWithKV 记录带 run 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, run string, kv map[string]string) *Timer {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "start", run: run, kv: kv})
	return &Timer{l: l, comp: comp, run: run, t0: time.Now()}
}

func since(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return time.Since(*t).Milliseconds()
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.log(zapcore.ErrorLevel, msg, event{comp: comp, stage: "error", code: code, dur: since(durSince)})
}

// ErrorWith 支持 run。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, run string) {
	l.log(zapcore.ErrorLevel, msg, event{comp: comp, stage: "error", code: code, dur: since(durSince), run: run})
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, run string, kv map[string]string) {
	l.log(zapcore.ErrorLevel, msg, event{comp: comp, stage: "error", code: code, dur: since(durSince), run: run, kv: kv})
}

// Warn 记录非致命异常（如单场战报抓取失败）。
func (l *Logger) Warn(comp, code, msg, run string, kv map[string]string) {
	l.log(zapcore.WarnLevel, msg, event{comp: comp, stage: "warn", code: code, run: run, kv: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "finish", dur: time.Since(start).Milliseconds(), count: count})
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, run string, kv map[string]string) {
	l.log(zapcore.DebugLevel, msg, event{comp: comp, stage: "start", run: run, kv: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l    *Logger
	comp string
	run  string
	t0   time.Time
}

// Began 返回起点，供 Error 的 durSince 使用。
func (t *Timer) Began() time.Time { return t.t0 }

// Finish 记录 finish；可选 count。同时观测耗时直方图。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	d := time.Since(t.t0).Milliseconds()
	ObserveDuration(t.comp, "finish", d)
	t.l.log(zapcore.InfoLevel, msg, event{comp: t.comp, stage: "finish", dur: d, count: count, run: t.run})
}
