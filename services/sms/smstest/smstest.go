// Package smstest provides a fake SMS gateway for tests.
package smstest

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
)

type Server struct {
	mu       sync.Mutex
	ts       *httptest.Server
	URL      string
	requests []Request
	failFor  map[string]int
	closed   bool
}

func NewServer() *Server {
	s := &Server{
		failFor: make(map[string]int),
	}
	s.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := ioutil.ReadAll(r.Body)
		v, _ := url.ParseQuery(string(data))
		req := Request{
			Method:   r.Method,
			PostData: NewPostData(v),
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		code, fail := s.failFor[req.PostData.Number]
		s.mu.Unlock()
		if fail {
			w.WriteHeader(code)
			w.Write([]byte(`{"number":["gateway refused"]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"message_id":1,"status":"Queued"}]`))
	}))
	s.URL = s.ts.URL
	return s
}

// FailFor makes the server answer with code for every message to number.
func (s *Server) FailFor(number string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFor[number] = code
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.ts.Close()
}

type Request struct {
	Method   string
	PostData PostData
}

type PostData struct {
	APIKey     string
	Number     string
	Message    string
	SenderName string
}

func NewPostData(v url.Values) PostData {
	return PostData{
		APIKey:     v.Get("apikey"),
		Number:     v.Get("number"),
		Message:    v.Get("message"),
		SenderName: v.Get("sendername"),
	}
}
