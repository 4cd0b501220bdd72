// Package diagnostic turns the diagnostic events of every service into structured zap logs.
package diagnostic

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Service struct {
	mu     sync.Mutex
	c      Config
	stdout io.Writer
	stderr io.Writer
	closer io.Closer
	level  zap.AtomicLevel

	Logger *zap.Logger
}

func NewService(c Config, stdout, stderr io.Writer) *Service {
	return &Service{
		c:      c,
		stdout: stdout,
		stderr: stderr,
		level:  zap.NewAtomicLevel(),
		Logger: zap.NewNop(),
	}
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "INFO":
		return zapcore.InfoLevel, nil
	case "WARN":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown logging level %q", level)
}

func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var output io.Writer
	switch s.c.File {
	case "STDERR":
		output = s.stderr
	case "STDOUT":
		output = s.stdout
	default:
		if err := os.MkdirAll(filepath.Dir(s.c.File), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(s.c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return err
		}
		output = f
		s.closer = f
	}

	if err := s.setLevel(s.c.Level); err != nil {
		return err
	}

	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	switch strings.ToLower(s.c.Encoding) {
	case "json":
		encoder = zapcore.NewJSONEncoder(ec)
	case "console", "":
		encoder = zapcore.NewConsoleEncoder(ec)
	default:
		return fmt.Errorf("unknown log encoding %q", s.c.Encoding)
	}

	s.Logger = zap.New(zapcore.NewCore(encoder, zapcore.AddSync(output), s.level))
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Logger.Sync()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// SetLevel changes the level of every logger handed out by s.
func (s *Service) SetLevel(level string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLevel(level)
}

func (s *Service) setLevel(level string) error {
	l, err := parseLevel(level)
	if err != nil {
		return err
	}
	s.level.SetLevel(l)
	return nil
}

func (s *Service) logger(service string) *zap.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Logger.With(zap.String("service", service))
}

func (s *Service) NewStorageHandler() *StorageHandler {
	return &StorageHandler{l: s.logger("storage")}
}

func (s *Service) NewDevicesHandler() *DevicesHandler {
	return &DevicesHandler{l: s.logger("devices")}
}

func (s *Service) NewSMSHandler() *SMSHandler {
	return &SMSHandler{l: s.logger("sms")}
}

func (s *Service) NewDispatchHandler() *DispatchHandler {
	return &DispatchHandler{l: s.logger("dispatch")}
}

func (s *Service) NewMQTTHandler() *MQTTHandler {
	return &MQTTHandler{l: s.logger("mqtt")}
}

func (s *Service) NewHTTPDHandler() *HTTPDHandler {
	return &HTTPDHandler{l: s.logger("http")}
}

func (s *Service) NewLoadHandler() *LoadHandler {
	return &LoadHandler{l: s.logger("load")}
}

func (s *Service) NewServerHandler() *ServerHandler {
	return &ServerHandler{l: s.logger("server")}
}

func (s *Service) NewCmdHandler() *CmdHandler {
	return &CmdHandler{l: s.logger("run")}
}
