package logger

import (
	"go.uber.org/zap"
)

var log, _ = zap.NewProduction()

// Init swaps the package logger. Development mode logs human readable
// console output at debug level.
func Init(development bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	log = l
	return nil
}

// L returns the underlying zap logger.
func L() *zap.Logger {
	return log
}

func Sync() {
	_ = log.Sync()
}

func Debug(msg string, fields ...zap.Field) {
	log.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
}

func LogAdminAction(adminID, action, params string) {
	log.Info("admin_action", zap.String("admin_id", adminID), zap.String("action", action), zap.String("params", params))
}
