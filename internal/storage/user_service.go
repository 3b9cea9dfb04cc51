// Package storage implements the user, house and image services on top of
// the document store.
//
// Every call re-reads the underlying files; services hold no cached state
// and several instances may share one data directory.
package storage

import (
	"crypto/subtle"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/zheng93775/house-keeper/internal/docstore"
	"github.com/zheng93775/house-keeper/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserService handles user management and authentication.
type UserService struct {
	users    *docstore.Collection[models.User]
	maxUsers int
}

// NewUserService creates a user service backed by user.json, creating an
// empty collection if the file is missing. maxUsers of 0 means unlimited.
func NewUserService(s *docstore.Store, maxUsers int) (*UserService, error) {
	c, err := docstore.NewCollection[models.User](s, "user.json")
	if err != nil {
		return nil, err
	}
	if err := c.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize user.json: %w", err)
	}
	return &UserService{users: c, maxUsers: maxUsers}, nil
}

// Create creates a new user with a hashed password.
func (s *UserService) Create(username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errUsernameRequired
	}
	if password == "" {
		return nil, errPasswordRequired
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	u := models.User{
		ID:       uuid.NewString(),
		Username: username,
		Password: hash,
		Token:    uuid.NewString(),
	}
	_, err = s.users.Modify(func(rows []models.User) ([]models.User, error) {
		if indexByUsername(rows, username) >= 0 {
			return nil, ErrUserExists
		}
		if s.maxUsers > 0 && len(rows) >= s.maxUsers {
			return nil, fmt.Errorf("%w: maximum of %d users", ErrQuotaExceeded, s.maxUsers)
		}
		return append(rows, u), nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Get retrieves a user by ID.
func (s *UserService) Get(id string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.ID == id })
}

// GetByUsername retrieves a user by username.
func (s *UserService) GetByUsername(username string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.Username == username })
}

// List returns all users.
func (s *UserService) List() ([]models.User, error) {
	return s.users.All()
}

// Login verifies the credentials and rotates the session token.
//
// A password stored in plaintext by older versions is accepted once and
// replaced by its hash in the same write.
func (s *UserService) Login(username, password string) (*models.User, error) {
	var out models.User
	_, err := s.users.Modify(func(rows []models.User) ([]models.User, error) {
		i := indexByUsername(rows, username)
		if i < 0 {
			return nil, ErrInvalidCredentials
		}
		ok, upgrade := checkPassword(rows[i].Password, password)
		if !ok {
			return nil, ErrInvalidCredentials
		}
		if upgrade {
			hash, err := hashPassword(password)
			if err != nil {
				return nil, err
			}
			rows[i].Password = hash
		}
		rows[i].Token = uuid.NewString()
		out = rows[i]
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout rotates the session token so outstanding cookies stop working.
func (s *UserService) Logout(id string) error {
	_, err := s.modify(id, func(u *models.User) error {
		u.Token = uuid.NewString()
		return nil
	})
	return err
}

// SetPassword replaces the password and rotates the session token.
func (s *UserService) SetPassword(username, password string) error {
	if password == "" {
		return errPasswordRequired
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.users.Modify(func(rows []models.User) ([]models.User, error) {
		i := indexByUsername(rows, username)
		if i < 0 {
			return nil, ErrUserNotFound
		}
		rows[i].Password = hash
		rows[i].Token = uuid.NewString()
		return rows, nil
	})
	return err
}

// ValidToken reports whether token is the user's current session token.
func ValidToken(u *models.User, token string) bool {
	return token != "" && subtle.ConstantTimeCompare([]byte(u.Token), []byte(token)) == 1
}

func (s *UserService) find(match func(*models.User) bool) (*models.User, error) {
	rows, err := s.users.All()
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if match(&rows[i]) {
			return &rows[i], nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *UserService) modify(id string, fn func(*models.User) error) (*models.User, error) {
	var out models.User
	_, err := s.users.Modify(func(rows []models.User) ([]models.User, error) {
		i := slices.IndexFunc(rows, func(u models.User) bool { return u.ID == id })
		if i < 0 {
			return nil, ErrUserNotFound
		}
		if err := fn(&rows[i]); err != nil {
			return nil, err
		}
		out = rows[i]
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func indexByUsername(rows []models.User, username string) int {
	return slices.IndexFunc(rows, func(u models.User) bool { return u.Username == username })
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// checkPassword compares password with the stored credential. upgrade is
// true when the stored value is a legacy plaintext password that matched.
func checkPassword(stored, password string) (ok, upgrade bool) {
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil, false
	}
	if stored == "" {
		return false, false
	}
	ok = subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
	return ok, ok
}

func isBcrypt(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
