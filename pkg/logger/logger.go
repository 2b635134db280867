package logger

import (
	"os"

	"learning_progress_backend/internal/config"

	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 初始化前为 Nop，测试和脚本里直接调用也不会空指针
var Log = zap.NewNop()

var rollbarEnabled bool

func InitLogger(cfg *config.Config) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	filename := cfg.Log.File
	if filename == "" {
		filename = "logs/app.log"
	}
	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	consoleWriter := zapcore.AddSync(os.Stdout)

	level := zap.InfoLevel
	if cfg.Log.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			level = zap.InfoLevel
		}
	}
	if cfg.Server.Mode == "debug" {
		level = zap.DebugLevel
	}

	core := zapcore.NewTee(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			fileWriter,
			level,
		),
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			consoleWriter,
			level,
		),
	)

	Log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))

	if cfg.Log.RollbarToken != "" {
		rollbar.SetToken(cfg.Log.RollbarToken)
		rollbar.SetEnvironment(cfg.Server.Mode)
		rollbar.SetStackTracer(rollbarerrors.StackTracer)
		rollbar.SetEnabled(true)
		rollbarEnabled = true
	}
}

// Report 后台任务的失败不会返回给调用方，配置了 Rollbar 时额外上报
func Report(err error, extras map[string]interface{}) {
	if !rollbarEnabled || err == nil {
		return
	}
	rollbar.Error(err, extras)
}

// Close 刷新缓冲的日志与上报队列
func Close() {
	_ = Log.Sync()
	if rollbarEnabled {
		rollbar.Wait()
	}
}
