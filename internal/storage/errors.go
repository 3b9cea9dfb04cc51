package storage

import "errors"

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when creating a user whose username is taken.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned by Login for an unknown username or a
	// wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrHouseNotFound is returned when no house has the requested ID.
	ErrHouseNotFound = errors.New("house not found")
	// ErrPermissionDenied is returned when the user may not act on the house.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrImageNotFound is returned when the image file does not exist.
	ErrImageNotFound = errors.New("image not found")
	// ErrUnsupportedImage is returned for image names with an unknown extension.
	ErrUnsupportedImage = errors.New("unsupported image type")
	// ErrQuotaExceeded is returned when a server quota would be exceeded.
	ErrQuotaExceeded = errors.New("quota exceeded")

	errUsernameRequired = errors.New("username is required")
	errPasswordRequired = errors.New("password is required")
	errNameRequired     = errors.New("name is required")
)
