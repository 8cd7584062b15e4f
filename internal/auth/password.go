package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("construction-portal"), bcrypt.DefaultCost)
	return hash
})

// BurnCompare costs the same as CheckPassword against a real account.
// Login calls it when the username does not exist.
func BurnCompare(password string) {
	bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
}
