package kubit

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// LoggerFileOptions configures the optional rotated log file
type LoggerFileOptions struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// NewLogger returns a new logger instance with sane defaults
// json outside of development, text otherwise
func NewLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	if !IsDevelopmentOrTest() {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	if IsTest() {
		l.SetLevel(logrus.WarnLevel)
	}

	return l
}

// configureLogger applies the logger section of the config
//
//	logger:
//	  level: debug
//	  format: json
//	  file:
//	    path: storage/logs/app.log
//	    max_size: 10
func configureLogger(l *logrus.Logger, v *viper.Viper) error {
	if lvl := v.GetString("logger.level"); lvl != "" && !IsTest() {
		level, err := logrus.ParseLevel(lvl)
		if err != nil {
			return err
		}
		l.SetLevel(level)
	}

	switch v.GetString("logger.format") {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if !v.IsSet("logger.file.path") {
		return nil
	}

	var opts LoggerFileOptions
	if err := v.UnmarshalKey("logger.file", &opts); err != nil {
		return err
	}

	l.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   opts.Compress,
	}))

	return nil
}
