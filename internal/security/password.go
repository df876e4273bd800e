package security

import "golang.org/x/crypto/bcrypt"

// bcryptCost is the work factor for stored password hashes.
const bcryptCost = 12

// HashPassword hashes a plaintext password for storage in an Auth row. It is
// the provisioning-time counterpart of CheckPassword: accounts are created
// with a hash from here, and login only ever compares against it.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext password matches the stored
// bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
