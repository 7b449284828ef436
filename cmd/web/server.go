package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"runtime/debug"

	app "github.com/automationpanda/bulldoggy"
	"github.com/automationpanda/bulldoggy/auth"
	"github.com/automationpanda/bulldoggy/editlock"
)

type contextKey string

const identityKey contextKey = "identity"

const (
	loginTitle     = "Login | Bulldoggy reminders app"
	remindersTitle = "Reminders | Bulldoggy reminders app"
	notFoundTitle  = "Not found | Bulldoggy reminders app"

	invalidLoginBanner = "Invalid login! Please retry."
	loggedOutBanner    = "Successfully logged out."
)

type server struct {
	infoLog  *log.Logger
	errorLog *log.Logger

	router http.Handler

	reminderStore app.ReminderStore
	sessions      *auth.SessionStore
	uiState       *editlock.Registry

	templateCache map[string]*template.Template
}

type viewModel struct {
	Title  string
	Banner string
	Yield  interface{}
}

func newServer(infoLog, errorLog *log.Logger, rs app.ReminderStore, sessions *auth.SessionStore) *server {
	srv := &server{
		infoLog:  infoLog,
		errorLog: errorLog,
	}
	srv.reminderStore = rs
	srv.sessions = sessions
	// UI state lives exactly as long as the tokens that key it.
	srv.uiState = editlock.NewRegistry(sessions.TTL())
	srv.parseTemplates()
	srv.registerRoutes()
	return srv
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *server) clientError(w http.ResponseWriter, status int, message string) {
	errorMessage := http.StatusText(status)
	if message != "" {
		errorMessage += ": " + message
	}
	http.Error(w, errorMessage, status)
}

func (s *server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	trace := fmt.Sprintf("%s\n%s", err.Error(), debug.Stack())
	s.errorLog.Output(2, trace)

	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// storeError maps domain errors onto HTTP statuses. ErrNotFound covers
// both missing and not-owned ids.
func (s *server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		s.clientError(w, http.StatusNotFound, "")
	case errors.Is(err, app.ErrEmptyName):
		s.clientError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, editlock.ErrNotEditing):
		s.clientError(w, http.StatusConflict, err.Error())
	default:
		s.serverError(w, r, err)
	}
}

// identity returns the verified identity attached to the request context
// by the authenticate middleware.
func (s *server) identity(r *http.Request) (auth.Identity, bool) {
	if temp := r.Context().Value(identityKey); temp != nil {
		if val, ok := temp.(auth.Identity); ok {
			return val, true
		}
		s.errorLog.Printf("identity context.value is not an Identity: %v", temp)
	}
	return auth.Identity{}, false
}

func (s *server) parseTemplates() {
	cache := map[string]*template.Template{}
	cache["login"] = template.Must(template.New("login").ParseFiles("./templates/login.gohtml"))
	cache["reminders"] = template.Must(template.New("reminders").ParseFiles("./templates/reminders.gohtml"))
	cache["notfound"] = template.Must(template.New("notfound").ParseFiles("./templates/notfound.gohtml"))
	s.templateCache = cache
}

func (s *server) render(w http.ResponseWriter, r *http.Request, name, title, banner string, data interface{}) {
	ts, ok := s.templateCache[name]
	if !ok {
		s.serverError(w, r, fmt.Errorf("template %s does not exist", name))
		return
	}

	viewModel := viewModel{
		Title:  title,
		Banner: banner,
		Yield:  data,
	}

	buf := bytes.Buffer{}

	err := ts.ExecuteTemplate(&buf, "layout", viewModel)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	buf.WriteTo(w)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
