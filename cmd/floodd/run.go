package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Dyllj/flood-monitoring-system-sub000/keyvalue"
	"github.com/Dyllj/flood-monitoring-system-sub000/server"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/diagnostic"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// shutdownTimeout bounds a clean shutdown after the first signal.
const shutdownTimeout = 30 * time.Second

// Options represents the command line options that can be parsed.
type Options struct {
	ConfigPath string
	PIDFile    string
	LogFile    string
	LogLevel   string
}

// Command represents the command executed by "floodd run".
type Command struct {
	closing chan struct{}
	Closed  chan struct{}

	Stdout io.Writer
	Stderr io.Writer

	Server      *server.Server
	Diag        *diagnostic.CmdHandler
	diagService *diagnostic.Service
}

// NewCommand return a new instance of Command.
func NewCommand() *Command {
	return &Command{
		closing: make(chan struct{}),
		Closed:  make(chan struct{}),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func runAction(ctx *cli.Context) error {
	cmd := NewCommand()
	err := cmd.Run(Options{
		ConfigPath: ctx.String("config"),
		PIDFile:    ctx.String("pidfile"),
		LogFile:    ctx.String("log-file"),
		LogLevel:   ctx.String("log-level"),
	})
	if err != nil {
		cmd.Close()
		return errors.Wrap(err, "run")
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	cmd.Diag.Info("listening for signals")

Loop:
	for s := range signalCh {
		switch s {
		case syscall.SIGHUP:
			cmd.Diag.Info("SIGHUP received, reloading roster files")
			if err := cmd.Server.Reload(); err != nil {
				cmd.Diag.Error("failed to reload roster files", err)
			}
		default:
			cmd.Diag.Info("signal received, initializing clean shutdown", keyvalue.KV("signal", s.String()))
			go cmd.Close()
			break Loop
		}
	}

	// Block again until another signal is received, a shutdown timeout elapses,
	// or the Command is gracefully closed
	cmd.Diag.Info("waiting for clean shutdown")
	select {
	case <-signalCh:
		cmd.Diag.Info("second signal received, initializing hard shutdown")
	case <-time.After(shutdownTimeout):
		cmd.Diag.Info("time limit reached, initializing hard shutdown")
	case <-cmd.Closed:
		cmd.Diag.Info("server shutdown completed")
	}
	return nil
}

// Run parses the config and runs the server.
func (cmd *Command) Run(options Options) error {
	config, err := ParseConfig(options.ConfigPath)
	if err != nil {
		return errors.Wrap(err, "parse config")
	}

	// Apply any environment variables on top of the parsed config
	if err := config.ApplyEnvOverrides(); err != nil {
		return errors.Wrap(err, "apply env config")
	}

	if options.LogFile != "" {
		config.Logging.File = options.LogFile
	}
	if options.LogLevel != "" {
		config.Logging.Level = options.LogLevel
	}

	cmd.diagService = diagnostic.NewService(config.Logging, cmd.Stdout, cmd.Stderr)
	if err := cmd.diagService.Open(); err != nil {
		return errors.Wrap(err, "init logging")
	}
	cmd.Diag = cmd.diagService.NewCmdHandler()
	cmd.Diag.Info("go runtime",
		keyvalue.KV("version", runtime.Version()),
		keyvalue.KV("maxprocs", strconv.Itoa(runtime.GOMAXPROCS(0))))

	if err := writePIDFile(options.PIDFile); err != nil {
		return errors.Wrap(err, "write pid file")
	}

	s, err := server.New(config, server.BuildInfo{Version: version, Commit: commit, Branch: branch}, cmd.diagService)
	if err != nil {
		return errors.Wrap(err, "create server")
	}
	if err := s.Open(); err != nil {
		return errors.Wrap(err, "open server")
	}
	cmd.Server = s

	// Begin monitoring the server's error channel.
	go cmd.monitorServerErrors()

	return nil
}

// Close shuts down the server.
func (cmd *Command) Close() error {
	defer close(cmd.Closed)
	close(cmd.closing)
	var err error
	if cmd.Server != nil {
		err = cmd.Server.Close()
	}
	if cmd.diagService != nil {
		cmd.diagService.Close()
	}
	return err
}

func (cmd *Command) monitorServerErrors() {
	for {
		select {
		case err := <-cmd.Server.Err():
			if err != nil {
				cmd.Diag.Error("server error", err)
			}
		case <-cmd.closing:
			return
		}
	}
}

// ParseConfig parses the config at path.
// Returns a config with defaults when path is empty.
func ParseConfig(path string) (*server.Config, error) {
	config := server.NewConfig()
	if path == "" {
		return config, nil
	}
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

func printConfig(w io.Writer, path string) error {
	config, err := ParseConfig(path)
	if err != nil {
		return errors.Wrap(err, "parse config")
	}
	if err := config.ApplyEnvOverrides(); err != nil {
		return errors.Wrap(err, "apply env config")
	}
	return toml.NewEncoder(w).Encode(config)
}

// writePIDFile writes the process ID to path.
func writePIDFile(path string) error {
	// Ignore if path is not set.
	if path == "" {
		return nil
	}

	// Ensure the required directory structure exists.
	err := os.MkdirAll(filepath.Dir(path), 0777)
	if err != nil {
		return fmt.Errorf("mkdir: %s", err)
	}

	// Retrieve the PID and write it.
	pid := strconv.Itoa(os.Getpid())
	if err := ioutil.WriteFile(path, []byte(pid), 0666); err != nil {
		return fmt.Errorf("write file: %s", err)
	}

	return nil
}
