package config

import (
	"flag"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	RunAddress  string
	DatabaseURI string
	SecretKey   string
	UploadsDir  string
	Logger      *zap.SugaredLogger
}

func NewConfig() *Config {
	cfg := &Config{}
	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "HTTP server address")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "DB connection string")
	flag.StringVar(&cfg.SecretKey, "k", "", "JWT signing key")
	flag.StringVar(&cfg.UploadsDir, "u", "uploads", "screenshot storage directory")
	flag.Parse()

	ReadServerEnvironment(cfg)

	cfg.Logger = NewLogger()

	return cfg
}

// NewLogger writes JSON logs to stdout and a rotated server.log.
func NewLogger() *zap.SugaredLogger {
	fileOut := &lumberjack.Logger{
		Filename:   "server.log",
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(
		encoder,
		zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(fileOut)),
		zapcore.InfoLevel,
	)

	return zap.New(core).Sugar()
}

func ReadServerEnvironment(cfg *Config) {
	if runAddress := os.Getenv("RUN_ADDRESS"); runAddress != "" {
		cfg.RunAddress = runAddress
	}

	if databaseURI := os.Getenv("DATABASE_URI"); databaseURI != "" {
		cfg.DatabaseURI = databaseURI
	}

	if secretKey := os.Getenv("TMS_KEY"); secretKey != "" {
		cfg.SecretKey = secretKey
	}

	if uploadsDir := os.Getenv("UPLOADS_DIR"); uploadsDir != "" {
		cfg.UploadsDir = uploadsDir
	}
}
