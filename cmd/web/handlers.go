package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	app "github.com/automationpanda/bulldoggy"
	"github.com/automationpanda/bulldoggy/editlock"
	"github.com/gorilla/mux"
)

type listJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type itemJSON struct {
	ID          int64  `json:"id"`
	ListID      int64  `json:"listId"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

func toListJSON(l app.List) listJSON {
	return listJSON{ID: l.ID, Name: l.Name}
}

func toItemJSON(i app.Item) itemJSON {
	return itemJSON{ID: i.ID, ListID: i.ListID, Description: i.Description, Completed: i.Completed}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func (s *server) handleHome() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.identity(r); ok {
			http.Redirect(w, r, "/reminders", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}
}

func (s *server) handleLoginPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.identity(r); ok {
			http.Redirect(w, r, "/reminders", http.StatusFound)
			return
		}

		banner := ""
		if r.URL.Query().Get("logout") == "true" {
			banner = loggedOutBanner
		}
		s.render(w, r, "login", loginTitle, banner, nil)
	}
}

func (s *server) handleLoginSubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}
		username := r.PostFormValue("username")
		password := r.PostFormValue("password")

		_, err := s.sessions.Login(w, username, password)
		switch {
		case err == nil:
			http.Redirect(w, r, "/reminders", http.StatusFound)
		case errors.Is(err, app.ErrIncompleteForm):
			// An incomplete form just redisplays the login view, no banner.
			s.render(w, r, "login", loginTitle, "", nil)
		case errors.Is(err, app.ErrInvalidCredentials):
			s.render(w, r, "login", loginTitle, invalidLoginBanner, nil)
		default:
			s.serverError(w, r, err)
		}
	}
}

func (s *server) handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identity, ok := s.identity(r); ok {
			s.uiState.Drop(identity.SessionID)
		}
		s.sessions.Logout(w)
		http.Redirect(w, r, "/login?logout=true", http.StatusFound)
	}
}

func (s *server) handleNotFound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		s.render(w, r, "notfound", notFoundTitle, "", nil)
	}
}

func (s *server) handleReminders() http.HandlerFunc {
	type remindersView struct {
		Username string
		Message  string
		Lists    []app.List
		Selected int64
		Items    []app.Item
	}

	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)

		lists, err := s.reminderStore.Lists(r.Context(), identity.Username)
		if err != nil {
			s.serverError(w, r, err)
			return
		}

		state := s.uiState.Get(identity.SessionID)
		// Rendering the page is a navigation: any in-flight edit is
		// discarded, never persisted.
		state.Cancel()
		selected := state.Selected()
		var items []app.Item
		if selected != 0 {
			items, err = s.reminderStore.Items(r.Context(), identity.Username, selected)
			if errors.Is(err, app.ErrNotFound) {
				// The selected list was deleted; fall back to no selection.
				state.Select(0)
				selected, items = 0, nil
			} else if err != nil {
				s.serverError(w, r, err)
				return
			}
		}

		s.render(w, r, "reminders", remindersTitle, "", remindersView{
			Username: identity.Username,
			Message:  fmt.Sprintf("Reminders for %s", identity.Username),
			Lists:    lists,
			Selected: selected,
			Items:    items,
		})
	}
}

func (s *server) handleLists() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)

		lists, err := s.reminderStore.Lists(r.Context(), identity.Username)
		if err != nil {
			s.serverError(w, r, err)
			return
		}

		payload := []listJSON{}
		for _, l := range lists {
			payload = append(payload, toListJSON(l))
		}
		respondWithJSON(w, http.StatusOK, payload)
	}
}

func (s *server) handleCreateList() http.HandlerFunc {
	type request struct {
		Name string `json:"name"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		list, err := s.reminderStore.CreateList(r.Context(), identity.Username, req.Name)
		if err != nil {
			s.storeError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, toListJSON(list))
	}
}

func (s *server) handleRenameList() http.HandlerFunc {
	type request struct {
		Name string `json:"name"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)
		id, err := pathID(r)
		if err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := s.reminderStore.RenameList(r.Context(), identity.Username, id, req.Name); err != nil {
			s.storeError(w, r, err)
			return
		}
		list, err := s.reminderStore.GetList(r.Context(), identity.Username, id)
		if err != nil {
			s.storeError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, toListJSON(list))
	}
}

func (s *server) handleDeleteList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)
		id, err := pathID(r)
		if err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := s.reminderStore.DeleteList(r.Context(), identity.Username, id); err != nil {
			s.storeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *server) handleSelectList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)
		id, err := pathID(r)
		if err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		// Selecting verifies ownership first so a foreign id reads as not
		// found, then only touches transient session state.
		if _, err := s.reminderStore.GetList(r.Context(), identity.Username, id); err != nil {
			s.storeError(w, r, err)
			return
		}
		s.uiState.Get(identity.SessionID).Select(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *server) handleItems() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)
		id, err := pathID(r)
		if err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		items, err := s.reminderStore.Items(r.Context(), identity.Username, id)
		if err != nil {
			s.storeError(w, r, err)
			return
		}

		payload := []itemJSON{}
		for _, i := range items {
			payload = append(payload, toItemJSON(i))
		}
		respondWithJSON(w, http.StatusOK, payload)
	}
}

func (s *server) handleCreateItem() http.HandlerFunc {
	type request struct {
		Description string `json:"description"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)
		id, err := pathID(r)
		if err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		item, err := s.reminderStore.CreateItem(r.Context(), identity.Username, id, req.Description)
		if err != nil {
			s.storeError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, toItemJSON(item))
	}
}

func (s *server) handleRenameItem() http.HandlerFunc {
	type request struct {
		Description string `json:"description"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)
		id, err := pathID(r)
		if err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := s.reminderStore.RenameItem(r.Context(), identity.Username, id, req.Description); err != nil {
			s.storeError(w, r, err)
			return
		}
		item, err := s.reminderStore.GetItem(r.Context(), identity.Username, id)
		if err != nil {
			s.storeError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, toItemJSON(item))
	}
}

func (s *server) handleToggleItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)
		id, err := pathID(r)
		if err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		item, err := s.reminderStore.ToggleItem(r.Context(), identity.Username, id)
		if err != nil {
			s.storeError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, toItemJSON(item))
	}
}

func (s *server) handleDeleteItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)
		id, err := pathID(r)
		if err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := s.reminderStore.DeleteItem(r.Context(), identity.Username, id); err != nil {
			s.storeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseEditKind(kind string) (editlock.Kind, error) {
	switch kind {
	case "list_name":
		return editlock.ListName, nil
	case "new_list_name":
		return editlock.NewListName, nil
	case "item_description":
		return editlock.ItemDescription, nil
	case "new_item_description":
		return editlock.NewItemDescription, nil
	}
	return 0, fmt.Errorf("unknown edit kind %q", kind)
}

func (s *server) handleEditBegin() http.HandlerFunc {
	type request struct {
		Kind string `json:"kind"`
		ID   int64  `json:"id"`
	}
	type response struct {
		Cancelled bool `json:"cancelled"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind, err := parseEditKind(req.Kind)
		if err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		// Ownership checks happen at begin time so the UI cannot open an
		// edit on a row the user cannot see.
		switch kind {
		case editlock.ListName, editlock.NewItemDescription:
			if _, err := s.reminderStore.GetList(r.Context(), identity.Username, req.ID); err != nil {
				s.storeError(w, r, err)
				return
			}
		case editlock.ItemDescription:
			if _, err := s.reminderStore.GetItem(r.Context(), identity.Username, req.ID); err != nil {
				s.storeError(w, r, err)
				return
			}
		}

		_, cancelled := s.uiState.Get(identity.SessionID).Begin(editlock.Target{Kind: kind, ID: req.ID})
		respondWithJSON(w, http.StatusOK, response{Cancelled: cancelled})
	}
}

func (s *server) handleEditCommit() http.HandlerFunc {
	type request struct {
		Value string `json:"value"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.clientError(w, http.StatusBadRequest, err.Error())
			return
		}

		state := s.uiState.Get(identity.SessionID)
		target, ok := state.Active()
		if !ok {
			s.storeError(w, r, editlock.ErrNotEditing)
			return
		}

		// The pending value reaches the store first; the edit is cleared
		// only once the persist succeeds, so a rejected value (say, an
		// empty name) leaves the row in edit mode for retry.
		var status int
		var payload interface{}
		switch target.Kind {
		case editlock.ListName:
			if err := s.reminderStore.RenameList(r.Context(), identity.Username, target.ID, req.Value); err != nil {
				s.storeError(w, r, err)
				return
			}
			list, err := s.reminderStore.GetList(r.Context(), identity.Username, target.ID)
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			status, payload = http.StatusOK, toListJSON(list)
		case editlock.NewListName:
			list, err := s.reminderStore.CreateList(r.Context(), identity.Username, req.Value)
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			status, payload = http.StatusCreated, toListJSON(list)
		case editlock.ItemDescription:
			if err := s.reminderStore.RenameItem(r.Context(), identity.Username, target.ID, req.Value); err != nil {
				s.storeError(w, r, err)
				return
			}
			item, err := s.reminderStore.GetItem(r.Context(), identity.Username, target.ID)
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			status, payload = http.StatusOK, toItemJSON(item)
		case editlock.NewItemDescription:
			item, err := s.reminderStore.CreateItem(r.Context(), identity.Username, target.ID, req.Value)
			if err != nil {
				s.storeError(w, r, err)
				return
			}
			status, payload = http.StatusCreated, toItemJSON(item)
		default:
			s.serverError(w, r, fmt.Errorf("unknown edit target kind %d", target.Kind))
			return
		}

		state.Commit()
		respondWithJSON(w, status, payload)
	}
}

func (s *server) handleEditCancel() http.HandlerFunc {
	type response struct {
		Cancelled bool `json:"cancelled"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := s.identity(r)
		_, cancelled := s.uiState.Get(identity.SessionID).Cancel()
		respondWithJSON(w, http.StatusOK, response{Cancelled: cancelled})
	}
}
