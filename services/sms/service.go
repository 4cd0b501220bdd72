// Package sms sends text messages through an HTTP SMS gateway.
package sms

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var ErrDisabled = errors.New("service is not enabled")

type Diagnostic interface {
	Accepted(number string, status int)
	Error(msg string, err error)
}

type Service struct {
	configValue atomic.Value
	client      *http.Client
	diag        Diagnostic
}

func NewService(c Config, d Diagnostic) *Service {
	s := &Service{
		client: &http.Client{},
		diag:   d,
	}
	s.configValue.Store(c)
	return s
}

func (s *Service) Open() error {
	return nil
}

func (s *Service) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Service) Update(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.configValue.Store(c)
	return nil
}

func (s *Service) config() Config {
	return s.configValue.Load().(Config)
}

type postData struct {
	APIKey     string
	Number     string
	Message    string
	SenderName string
}

func (p postData) Values() url.Values {
	v := url.Values{}
	v.Set("apikey", p.APIKey)
	v.Set("number", p.Number)
	v.Set("message", p.Message)
	if p.SenderName != "" {
		v.Set("sendername", p.SenderName)
	}
	return v
}

// Send submits one message to the gateway. A nil error means the gateway accepted it,
// not that it reached the handset.
func (s *Service) Send(ctx context.Context, number, message string) error {
	c := s.config()
	if !c.Enabled {
		return ErrDisabled
	}
	p := postData{
		APIKey:     c.APIKey,
		Number:     number,
		Message:    message,
		SenderName: c.SenderName,
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.Timeout))
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, strings.NewReader(p.Values().Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sms gateway request")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway rejected message, code: %d content: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	// Drain so the connection can be reused.
	io.Copy(ioutil.Discard, resp.Body)
	s.diag.Accepted(number, resp.StatusCode)
	return nil
}
