// Package server wires the floodd services together and manages their lifecycle.
package server

import (
	"fmt"

	"github.com/Dyllj/flood-monitoring-system-sub000/keyvalue"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/alertlog"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/devices"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/diagnostic"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/dispatch"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/httpd"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/load"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/mqtt"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/recipients"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/sms"
	"github.com/Dyllj/flood-monitoring-system-sub000/services/storage"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// BuildInfo represents the build details for the server code.
type BuildInfo struct {
	Version string
	Commit  string
	Branch  string
}

type Diagnostic interface {
	Info(msg string, ctx ...keyvalue.T)
	Error(msg string, err error)
}

// Server represents a container for the storage and services.
// It is built using a Config and it manages the startup and shutdown of all
// services in the proper order.
type Server struct {
	config *Config

	err chan error

	StorageService    *storage.Service
	DevicesService    *devices.Service
	RecipientsService *recipients.Service
	AlertLogService   *alertlog.Service
	SMSService        *sms.Service
	DispatchService   *dispatch.Service
	LoadService       *load.Service
	MQTTService       *mqtt.Service
	HTTPDService      *httpd.Service

	// Registry collects the metrics served on /metrics.
	Registry *prometheus.Registry

	// List of services in startup order
	Services []Service
	// Map of service name to index in Services list
	ServicesByName map[string]int

	BuildInfo BuildInfo

	DiagService *diagnostic.Service
	diag        Diagnostic
}

// New returns a new instance of Server built from a config.
func New(c *Config, buildInfo BuildInfo, diagService *diagnostic.Service) (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	s := &Server{
		config:         c,
		err:            make(chan error, 1),
		Registry:       prometheus.NewRegistry(),
		ServicesByName: make(map[string]int),
		BuildInfo:      buildInfo,
		DiagService:    diagService,
		diag:           diagService.NewServerHandler(),
	}
	s.diag.Info("server starting",
		keyvalue.KV("version", buildInfo.Version),
		keyvalue.KV("branch", buildInfo.Branch),
		keyvalue.KV("commit", buildInfo.Commit))

	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Append services in dependency order, they are closed in reverse.
	s.appendStorageService()
	s.appendDevicesService()
	s.appendRecipientsService()
	s.appendAlertLogService()
	s.appendSMSService()
	if err := s.appendDispatchService(); err != nil {
		return nil, err
	}
	s.appendLoadService()
	s.appendMQTTService()
	s.appendHTTPDService()

	return s, nil
}

func (s *Server) AppendService(name string, srv Service) {
	if _, ok := s.ServicesByName[name]; ok {
		// Should be unreachable code
		panic("cannot append service twice")
	}
	i := len(s.Services)
	s.Services = append(s.Services, srv)
	s.ServicesByName[name] = i
}

func (s *Server) appendStorageService() {
	srv := storage.NewService(s.config.Storage, s.DiagService.NewStorageHandler())
	s.StorageService = srv
	s.AppendService("storage", srv)
}

func (s *Server) appendDevicesService() {
	srv := devices.NewService(s.DiagService.NewDevicesHandler())
	srv.StorageService = s.StorageService
	s.DevicesService = srv
	s.AppendService("devices", srv)
}

func (s *Server) appendRecipientsService() {
	srv := recipients.NewService()
	srv.StorageService = s.StorageService
	s.RecipientsService = srv
	s.AppendService("recipients", srv)
}

func (s *Server) appendAlertLogService() {
	srv := alertlog.NewService()
	srv.StorageService = s.StorageService
	s.AlertLogService = srv
	s.AppendService("alertlog", srv)
}

func (s *Server) appendSMSService() {
	srv := sms.NewService(s.config.SMS, s.DiagService.NewSMSHandler())
	s.SMSService = srv
	s.AppendService("sms", srv)
}

func (s *Server) appendDispatchService() error {
	srv, err := dispatch.NewService(s.config.Dispatch, s.DiagService.NewDispatchHandler())
	if err != nil {
		return err
	}
	srv.DeviceStore = s.DevicesService
	srv.Recipients = s.RecipientsService
	srv.Gateway = s.SMSService
	srv.AlertLog = s.AlertLogService
	srv.LastUpdater = s.DevicesService
	srv.Registerer = s.Registry
	s.DispatchService = srv
	s.AppendService("dispatch", srv)
	return nil
}

func (s *Server) appendLoadService() {
	srv := load.NewService(s.config.Load, s.DiagService.NewLoadHandler())
	srv.Devices = s.DevicesService
	srv.Recipients = s.RecipientsService
	s.LoadService = srv
	s.AppendService("load", srv)
}

func (s *Server) appendMQTTService() {
	srv := mqtt.NewService(s.config.MQTT, s.DiagService.NewMQTTHandler())
	srv.Engine = s.DispatchService
	s.MQTTService = srv
	s.AppendService("mqtt", srv)
}

func (s *Server) appendHTTPDService() {
	srv := httpd.NewService(s.config.HTTP, s.DiagService.NewHTTPDHandler())
	srv.Handler.Engine = s.DispatchService
	srv.Handler.Devices = s.DevicesService
	srv.Handler.Recipients = s.RecipientsService
	srv.Handler.AlertLog = s.AlertLogService
	srv.Handler.Gatherer = s.Registry
	s.HTTPDService = srv
	s.AppendService("httpd", srv)
}

// Err returns an error channel that multiplexes all out of band errors received from all services.
func (s *Server) Err() <-chan error { return s.err }

// Open opens all the services.
func (s *Server) Open() error {
	if err := s.startServices(); err != nil {
		s.Close()
		return err
	}

	go s.watchServices()

	return nil
}

func (s *Server) startServices() error {
	for _, service := range s.Services {
		s.diag.Info("opening service", keyvalue.KV("service", fmt.Sprintf("%T", service)))
		if err := service.Open(); err != nil {
			return fmt.Errorf("open service %T: %s", service, err)
		}
		s.diag.Info("opened service", keyvalue.KV("service", fmt.Sprintf("%T", service)))
	}
	return nil
}

// Watch if something dies
func (s *Server) watchServices() {
	err := <-s.HTTPDService.Err()
	s.err <- err
}

// Reload re-reads the roster files.
func (s *Server) Reload() error {
	return s.LoadService.Load()
}

// Close shuts down the services in the reverse of their startup order.
func (s *Server) Close() error {
	for i := len(s.Services) - 1; i >= 0; i-- {
		service := s.Services[i]
		s.diag.Info("closing service", keyvalue.KV("service", fmt.Sprintf("%T", service)))
		err := service.Close()
		if err != nil {
			s.diag.Error(fmt.Sprintf("error closing service %T", service), err)
		}
		s.diag.Info("closed service", keyvalue.KV("service", fmt.Sprintf("%T", service)))
	}
	return nil
}

// Service represents a service attached to the server.
type Service interface {
	Open() error
	Close() error
}
