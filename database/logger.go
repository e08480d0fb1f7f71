package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	kerrors "github.com/kubit-go/kubit/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// EventQuery is emitted for every query of a connection with debug enabled
const EventQuery = "db:query"

const defaultSlowThreshold = time.Second

// Emitter is what the database needs from the application event manager
type Emitter interface {
	Emit(ctx context.Context, name string, data any)
}

// QueryEvent is the payload of db:query
type QueryEvent struct {
	Connection string        `json:"connection"`
	SQL        string        `json:"sql"`
	Rows       int64         `json:"rows"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// Logger bridges gorm logging into logrus
type Logger struct {
	logger        *logrus.Entry
	connection    string
	level         gormlogger.LogLevel
	slowThreshold time.Duration
	debug         bool
	emitter       Emitter
}

func newLogger(base *logrus.Logger, connection string, cfg ConnectionConfig, emitter Emitter) *Logger {
	threshold := cfg.SlowThreshold
	if threshold == 0 {
		threshold = defaultSlowThreshold
	}

	return &Logger{
		logger:        base.WithField("connection", connection),
		connection:    connection,
		level:         gormlogger.Info,
		slowThreshold: threshold,
		debug:         cfg.Debug,
		emitter:       emitter,
	}
}

func (l *Logger) withSourceFields() *logrus.Entry {
	return l.logger.WithField("caller", kerrors.FileWithLineNum())
}

// LogMode log mode
func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	nl := *l
	nl.level = level
	return &nl
}

func (l *Logger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.withSourceFields().Infof(msg, data...)
	}
}

func (l *Logger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.withSourceFields().Warnf(msg, data...)
	}
}

func (l *Logger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.withSourceFields().Errorf(msg, data...)
	}
}

// Trace logs the sql, slow queries are warnings and record not found is not an error
func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	if l.debug && l.emitter != nil {
		l.emitter.Emit(ctx, EventQuery, QueryEvent{
			Connection: l.connection,
			SQL:        sql,
			Rows:       rows,
			Duration:   elapsed,
			Err:        err,
		})
	}

	duration := float64(elapsed.Nanoseconds()) / 1e6

	logger := l.logger.WithFields(logrus.Fields{
		"elapsed":  duration,
		"duration": fmt.Sprintf("%v", duration),
		"caller":   kerrors.FileWithLineNum(),
	})

	if rows != -1 {
		logger = logger.WithField("rows", rows)
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		logger.Errorf("%s %s", err, sql)
	case elapsed >= l.slowThreshold && l.level >= gormlogger.Warn:
		logger.Warnf("SLOW SQL >= %v (%s)", l.slowThreshold, sql)
	case l.debug:
		logger.Info(sql)
	default:
		logger.Debug(sql)
	}
}

var _ gormlogger.Interface = &Logger{}
