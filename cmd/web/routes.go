package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/etitcombe/logifymw"
	"github.com/gorilla/mux"
)

func (s *server) registerRoutes() {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleHome()).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLoginPage()).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLoginSubmit()).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout()).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/reminders", s.requireAuthentication(s.handleReminders())).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAPIAuthentication)
	api.HandleFunc("/lists", s.handleLists()).Methods(http.MethodGet)
	api.HandleFunc("/lists", s.handleCreateList()).Methods(http.MethodPost)
	api.HandleFunc("/lists/{id:[0-9]+}", s.handleRenameList()).Methods(http.MethodPatch)
	api.HandleFunc("/lists/{id:[0-9]+}", s.handleDeleteList()).Methods(http.MethodDelete)
	api.HandleFunc("/lists/{id:[0-9]+}/select", s.handleSelectList()).Methods(http.MethodPost)
	api.HandleFunc("/lists/{id:[0-9]+}/items", s.handleItems()).Methods(http.MethodGet)
	api.HandleFunc("/lists/{id:[0-9]+}/items", s.handleCreateItem()).Methods(http.MethodPost)
	api.HandleFunc("/items/{id:[0-9]+}", s.handleRenameItem()).Methods(http.MethodPatch)
	api.HandleFunc("/items/{id:[0-9]+}", s.handleDeleteItem()).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id:[0-9]+}/toggle", s.handleToggleItem()).Methods(http.MethodPost)
	api.HandleFunc("/edit/begin", s.handleEditBegin()).Methods(http.MethodPost)
	api.HandleFunc("/edit/commit", s.handleEditCommit()).Methods(http.MethodPost)
	api.HandleFunc("/edit/cancel", s.handleEditCancel()).Methods(http.MethodPost)

	// Unknown routes render the not-found view regardless of auth state.
	r.NotFoundHandler = s.handleNotFound()

	s.router = s.recoverPanicMw(logifymw.LogIt2(s.infoLog, s.authenticate(r)))
}

// authenticate verifies the session cookie, if present, and attaches the
// identity to the request context. It never rejects; handlers that need
// auth are wrapped in requireAuthentication.
func (s *server) authenticate(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.sessions.Authenticate(r)
		if err != nil {
			// A missing, forged, or expired cookie is just an
			// unauthenticated request.
			h.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, identityKey, identity)
		r = r.WithContext(ctx)
		h.ServeHTTP(w, r)
	})
}

func (s *server) requireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.identity(r); !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) requireAPIAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.identity(r); !ok {
			s.clientError(w, http.StatusUnauthorized, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) recoverPanicMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				s.serverError(w, r, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
