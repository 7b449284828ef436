package db

import (
	"encoding/gob"
	"os"
	"strings"
	"sync"

	app "github.com/automationpanda/bulldoggy"
	"golang.org/x/crypto/bcrypt"
)

// UserStoreFile implements the UserStore interface against the file system.
type UserStoreFile struct {
	UserPwPepper string
	path         string
	lock         sync.Mutex
}

// NewUserStoreFile creates and returns a new instance of a UserStoreFile
// backed by the gob file at path.
func NewUserStoreFile(path, pepper string) (*UserStoreFile, error) {
	return &UserStoreFile{path: path, UserPwPepper: pepper}, nil
}

// Authenticate authenticates a user based on username and password.
func (s *UserStoreFile) Authenticate(username, password string) (*app.User, error) {
	foundUser, err := s.ByUsername(username)
	if err != nil {
		return nil, app.ErrInvalidCredentials
	}

	err = bcrypt.CompareHashAndPassword([]byte(foundUser.PasswordHash), []byte(password+s.UserPwPepper))
	switch err {
	case nil:
		return foundUser, nil
	default:
		return nil, app.ErrInvalidCredentials
	}
}

// Close closes the underlying connection.
func (s *UserStoreFile) Close() {
}

// Create hashes the password and appends the user to the store.
func (s *UserStoreFile) Create(user *app.User, password string) error {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password+s.UserPwPepper), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hashedBytes)

	users, err := s.retrieveUsers()
	if err != nil {
		return err
	}
	users = append(users, *user)
	return s.saveUsers(users)
}

// ByUsername retrieves a user by their username.
func (s *UserStoreFile) ByUsername(username string) (*app.User, error) {
	users, err := s.retrieveUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, app.ErrNotFound
}

func (s *UserStoreFile) retrieveUsers() ([]app.User, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	users := []app.User{}

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return users, nil
		}
		return nil, err
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	err = dec.Decode(&users)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *UserStoreFile) saveUsers(users []app.User) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	return enc.Encode(users)
}
