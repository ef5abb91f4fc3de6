package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// OwnedBy reports whether key sits under the user's upload prefix.
func OwnedBy(key string, userID uint) bool {
	return strings.HasPrefix(key, fmt.Sprintf("uploads/%d/", userID)) && !strings.Contains(key, "..")
}
