// Package benchsrv exposes a bench session over HTTP with the generic
// device-server payloads, so any Session (the mock included) can stand in
// for the lab's device server.
package benchsrv

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"github.com/3cs/benchcal/calerr"
	"github.com/3cs/benchcal/session"
)

// status maps an error from the session to an HTTP status
func status(err error) int {
	if calerr.Is(err, calerr.ErrOutOfRange) || calerr.Is(err, calerr.ErrConfiguration) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// decode reads a JSON body into v, replying 400 on failure
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), status(err))
}

// handlers returns the GET and POST handlers of p
func handlers(s session.Session, p session.Property, k session.Kind) (get, set http.HandlerFunc) {
	switch k {
	case session.Float:
		get = func(w http.ResponseWriter, r *http.Request) {
			f, err := s.GetFloat(r.Context(), p)
			if err != nil {
				fail(w, err)
				return
			}
			respond(w, session.FloatT{F64: f})
		}
		set = func(w http.ResponseWriter, r *http.Request) {
			v := session.FloatT{}
			if !decode(w, r, &v) {
				return
			}
			if err := s.SetFloat(r.Context(), p, v.F64); err != nil {
				fail(w, err)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	case session.Int:
		get = func(w http.ResponseWriter, r *http.Request) {
			i, err := s.GetInt(r.Context(), p)
			if err != nil {
				fail(w, err)
				return
			}
			respond(w, session.IntT{Int: i})
		}
		set = func(w http.ResponseWriter, r *http.Request) {
			v := session.IntT{}
			if !decode(w, r, &v) {
				return
			}
			if err := s.SetInt(r.Context(), p, v.Int); err != nil {
				fail(w, err)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	case session.String:
		get = func(w http.ResponseWriter, r *http.Request) {
			str, err := s.GetString(r.Context(), p)
			if err != nil {
				fail(w, err)
				return
			}
			respond(w, session.StrT{Str: str})
		}
		set = func(w http.ResponseWriter, r *http.Request) {
			v := session.StrT{}
			if !decode(w, r, &v) {
				return
			}
			if err := s.SetString(r.Context(), p, v.Str); err != nil {
				fail(w, err)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	default:
		get = func(w http.ResponseWriter, r *http.Request) {
			b, err := s.GetBool(r.Context(), p)
			if err != nil {
				fail(w, err)
				return
			}
			respond(w, session.BoolT{Bool: b})
		}
		set = func(w http.ResponseWriter, r *http.Request) {
			v := session.BoolT{}
			if !decode(w, r, &v) {
				return
			}
			if err := s.SetBool(r.Context(), p, v.Bool); err != nil {
				fail(w, err)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}
	return get, set
}

// requestLogger logs each request at debug level
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)))
		})
	}
}

// Endpoints lists the property names of every device
func Endpoints() map[string][]string {
	graph := map[string][]string{}
	for p := range session.Properties {
		graph[p.Device] = append(graph[p.Device], p.Name)
	}
	for _, names := range graph {
		sort.Strings(names)
	}
	return graph
}

// BuildMux returns a router serving every bench property of s at
// /{device}/{name}, plus /endpoints listing them
func BuildMux(s session.Session, log *zap.Logger) chi.Router {
	if log == nil {
		log = zap.NewNop()
	}
	root := chi.NewRouter()
	root.Use(middleware.Recoverer)
	root.Use(requestLogger(log))
	for p, k := range session.Properties {
		get, set := handlers(s, p, k)
		route := session.Route(p)
		root.Get(route, get)
		root.Post(route, set)
	}
	graph := Endpoints()
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		respond(w, graph)
	})
	return root
}
