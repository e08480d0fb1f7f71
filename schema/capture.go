package schema

import (
	"context"
	"sync"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

// captureLogger records every statement gorm traces before handing it to
// the connection logger
type captureLogger struct {
	gormlogger.Interface

	dryRun bool

	mu      *sync.Mutex
	queries *[]string
}

func newCaptureLogger(inner gormlogger.Interface, dryRun bool) *captureLogger {
	if inner == nil {
		inner = gormlogger.Discard
	}
	return &captureLogger{Interface: inner, dryRun: dryRun, mu: &sync.Mutex{}, queries: &[]string{}}
}

func (c *captureLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	nc := *c
	nc.Interface = c.Interface.LogMode(level)
	return &nc
}

func (c *captureLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	sql, rows := fc()

	c.mu.Lock()
	*c.queries = append(*c.queries, sql)
	c.mu.Unlock()

	if c.dryRun {
		return
	}

	c.Interface.Trace(ctx, begin, func() (string, int64) { return sql, rows }, err)
}

func (c *captureLogger) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), *c.queries...)
}
