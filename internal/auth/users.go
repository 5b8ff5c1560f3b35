package auth

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/talentcomp/comprec/internal/models"
)

// User is one entry of the static user directory.
type User struct {
	Email        string          `yaml:"email"`
	Name         string          `yaml:"name"`
	UserType     models.UserType `yaml:"user_type"`
	PasswordHash string          `yaml:"password_hash"`
}

// Directory is the user directory loaded from users.yaml.
type Directory struct {
	users map[string]User
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// LoadDirectory reads users.yaml. Emails are matched case-insensitively.
func LoadDirectory(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}

	var f usersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}

	d := &Directory{users: make(map[string]User, len(f.Users))}
	for _, u := range f.Users {
		if u.Email == "" || u.PasswordHash == "" {
			return nil, fmt.Errorf("users file: entry missing email or password_hash")
		}
		if u.UserType != models.UserTypeCompTeam && u.UserType != models.UserTypeRecruitmentTeam {
			return nil, fmt.Errorf("users file: %s has unknown user_type %q", u.Email, u.UserType)
		}
		d.users[strings.ToLower(u.Email)] = u
	}
	return d, nil
}

// Authenticate verifies credentials and returns the matched user.
func (d *Directory) Authenticate(email, password string) (*User, error) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		// Burn a hash comparison anyway so unknown emails take as long as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B0G3FQDrD1rY0mT8mZ0a6vGf0y5K"), []byte(password))
		return nil, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	out := u
	return &out, nil
}

// Lookup returns the user by email without verifying credentials.
func (d *Directory) Lookup(email string) (*User, bool) {
	u, ok := d.users[strings.ToLower(email)]
	if !ok {
		return nil, false
	}
	return &u, true
}
