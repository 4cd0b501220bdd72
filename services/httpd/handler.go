package httpd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/influxdata/httprouter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const BasePath = "/flood/v1"

type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
	noJSON      bool
	noAuth      bool
}

// Handler represents an HTTP handler for the flood API server.
type Handler struct {
	router *httprouter.Router

	requireAuthentication bool
	sharedSecret          string
	loggingEnabled        bool

	Engine     Engine
	Devices    DeviceRegistry
	Recipients RecipientDirectory
	AlertLog   AlertLog
	// Gatherer serves /metrics, the route answers 404 when it is nil.
	Gatherer prometheus.Gatherer
	Clock    clock.Clock

	diag Diagnostic
}

// NewHandler returns a new instance of handler with routes.
func NewHandler(requireAuthentication, loggingEnabled bool, sharedSecret string, d Diagnostic) *Handler {
	h := &Handler{
		router:                httprouter.New(),
		requireAuthentication: requireAuthentication,
		sharedSecret:          sharedSecret,
		loggingEnabled:        loggingEnabled,
		Clock:                 clock.New(),
		diag:                  d,
	}
	h.router.NotFound = http.HandlerFunc(h.serve404)
	h.router.MethodNotAllowed = http.HandlerFunc(h.serve405)
	h.router.PanicHandler = h.panicHandler

	h.addRoutes([]Route{
		{Name: "ping", Method: "GET", Pattern: "/ping", HandlerFunc: h.servePing, noAuth: true},
		{Name: "ping-head", Method: "HEAD", Pattern: "/ping", HandlerFunc: h.servePing, noAuth: true},
		{Name: "metrics", Method: "GET", Pattern: "/metrics", HandlerFunc: h.serveMetrics, noJSON: true},

		{Name: "readings", Method: "POST", Pattern: "/readings", HandlerFunc: h.handleReading},

		{Name: "devices", Method: "GET", Pattern: "/devices", HandlerFunc: h.handleListDevices},
		{Name: "device", Method: "GET", Pattern: "/devices/:id", HandlerFunc: h.handleGetDevice},
		{Name: "device-put", Method: "PUT", Pattern: "/devices/:id", HandlerFunc: h.handlePutDevice},
		{Name: "device-patch", Method: "PATCH", Pattern: "/devices/:id", HandlerFunc: h.handlePatchDevice},
		{Name: "device-delete", Method: "DELETE", Pattern: "/devices/:id", HandlerFunc: h.handleDeleteDevice},

		{Name: "recipients", Method: "GET", Pattern: "/recipients", HandlerFunc: h.handleListRecipients},
		{Name: "recipient", Method: "GET", Pattern: "/recipients/:id", HandlerFunc: h.handleGetRecipient},
		{Name: "recipient-put", Method: "PUT", Pattern: "/recipients/:id", HandlerFunc: h.handlePutRecipient},
		{Name: "recipient-delete", Method: "DELETE", Pattern: "/recipients/:id", HandlerFunc: h.handleDeleteRecipient},

		{Name: "dispatches", Method: "GET", Pattern: "/dispatches", HandlerFunc: h.handleListDispatches},
		{Name: "alert", Method: "GET", Pattern: "/alerts/:id", HandlerFunc: h.handleGetAlert},
	})
	return h
}

func (h *Handler) addRoutes(routes []Route) {
	for _, r := range routes {
		h.addRoute(r)
	}
}

func (h *Handler) addRoute(r Route) {
	var handler http.Handler = r.HandlerFunc
	if !r.noAuth {
		handler = authenticate(handler, h)
	}
	// Set basic handlers for all requests
	if !r.noJSON {
		handler = jsonContent(handler)
	}
	handler = requestID(handler)
	if h.loggingEnabled {
		handler = logHandler(handler, h.diag)
	}
	h.router.Handler(r.Method, BasePath+r.Pattern, handler)
}

func (h *Handler) validate() error {
	if h.Engine == nil || h.Devices == nil || h.Recipients == nil || h.AlertLog == nil {
		return errors.New("http handler is missing a dependency")
	}
	return nil
}

// ServeHTTP responds to HTTP request to the handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// serve404 returns an a formated 404 error
func (h *Handler) serve404(w http.ResponseWriter, r *http.Request) {
	HttpError(w, "Not Found", true, http.StatusNotFound)
}

func (h *Handler) serve405(w http.ResponseWriter, r *http.Request) {
	HttpError(w, "Method Not Allowed", true, http.StatusMethodNotAllowed)
}

func (h *Handler) panicHandler(w http.ResponseWriter, r *http.Request, rcv interface{}) {
	h.diag.Error("panic serving "+r.Method+" "+r.URL.Path, fmt.Errorf("%v", rcv))
	HttpError(w, "internal server error", true, http.StatusInternalServerError)
}

// servePing returns a simple response to let the client know the server is running.
func (h *Handler) servePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serveMetrics(w http.ResponseWriter, r *http.Request) {
	if h.Gatherer == nil {
		h.serve404(w, r)
		return
	}
	promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// MarshalJSON will marshal v to JSON. Pretty prints if pretty is true.
func MarshalJSON(v interface{}, pretty bool) []byte {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "    ")
	} else {
		b, err = json.Marshal(v)
	}

	if err != nil {
		type errResponse struct {
			Error string `json:"error"`
		}
		er := errResponse{Error: err.Error()}
		b, _ = json.Marshal(er)
	}
	return b
}

// HttpError writes an error to the client in a standard format.
func HttpError(w http.ResponseWriter, err string, pretty bool, code int) {
	w.WriteHeader(code)

	type errResponse struct {
		Error string `json:"error"`
	}

	response := errResponse{Error: err}
	var b []byte
	if pretty {
		b, _ = json.MarshalIndent(response, "", "    ")
	} else {
		b, _ = json.Marshal(response)
	}
	w.Write(b)
}

// Filters and filter helpers

// authenticate wraps a handler and rejects the request unless it carries a valid
// bearer token signed with the shared secret.
func authenticate(inner http.Handler, h *Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Return early if we are not authenticating
		if !h.requireAuthentication {
			inner.ServeHTTP(w, r)
			return
		}

		token, err := parseBearer(r)
		if err != nil {
			HttpError(w, err.Error(), false, http.StatusUnauthorized)
			return
		}
		if err := h.validateToken(token); err != nil {
			HttpError(w, err.Error(), false, http.StatusUnauthorized)
			return
		}
		inner.ServeHTTP(w, r)
	})
}

func (h *Handler) validateToken(raw string) error {
	keyLookupFn := func(token *jwt.Token) (interface{}, error) {
		// Check for expected signing method.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.sharedSecret), nil
	}

	// Parse and validate the token.
	token, err := jwt.Parse(raw, keyLookupFn)
	if err != nil {
		return fmt.Errorf("invalid token: %s", err.Error())
	} else if !token.Valid {
		return errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		// This should not be possible, but just in case.
		return errors.New("invalid claims type")
	}

	// The exp claim is validated internally as long as it exists and is non-zero.
	// Make sure a non-zero expiration was set on the token.
	if exp, ok := claims["exp"].(float64); !ok || exp <= 0.0 {
		return errors.New("token expiration required")
	}
	return nil
}

// parseBearer returns the token of an Authorization: Bearer <JWT_TOKEN_BLOB> header.
func parseBearer(r *http.Request) (string, error) {
	s := r.Header.Get("Authorization")
	strs := strings.Split(s, " ")
	if len(strs) == 2 && strs[0] == "Bearer" && strs[1] != "" {
		return strs[1], nil
	}
	return "", errors.New("unable to parse authentication credentials")
}

func jsonContent(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		inner.ServeHTTP(w, r)
	})
}

func requestID(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := uuid.New()
		r.Header.Set("Request-Id", uid.String())
		w.Header().Set("Request-Id", r.Header.Get("Request-Id"))

		inner.ServeHTTP(w, r)
	})
}

func logHandler(inner http.Handler, d Diagnostic) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := &responseLogger{ResponseWriter: w}
		inner.ServeHTTP(l, r)
		d.HTTP(r.Method, r.URL.RequestURI(), l.Status(), r.RemoteAddr, r.Header.Get("Request-Id"), time.Since(start))
	})
}

// responseLogger records the status code written to the client.
type responseLogger struct {
	http.ResponseWriter
	status int
}

func (l *responseLogger) WriteHeader(code int) {
	l.status = code
	l.ResponseWriter.WriteHeader(code)
}

func (l *responseLogger) Write(b []byte) (int, error) {
	if l.status == 0 {
		l.status = http.StatusOK
	}
	return l.ResponseWriter.Write(b)
}

func (l *responseLogger) Status() int {
	if l.status == 0 {
		return http.StatusOK
	}
	return l.status
}
