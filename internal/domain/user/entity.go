package user

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// User is an operator account of a transport company.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	EntrepriseID string     `json:"entreprise_id,omitempty"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP  string     `json:"last_login_ip,omitempty"`
	LoginCount   int        `json:"login_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NormalizeEmail lower-cases and trims an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks the fields required to persist a user.
func (u *User) Validate() error {
	fields := map[string]string{}
	if !strings.Contains(u.Email, "@") {
		fields["email"] = "Adresse email invalide"
	}
	if strings.TrimSpace(u.Username) == "" {
		fields["username"] = "Le nom d'utilisateur est requis"
	}
	if u.PasswordHash == "" {
		fields["password"] = "Le mot de passe est requis"
	}
	return apperrors.ValidationFields("utilisateur invalide", fields)
}

// Representation is the label used in audit records.
func (u *User) Representation() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// RecordLogin stamps a successful login.
func (u *User) RecordLogin(ip string, at time.Time) {
	t := at
	u.LastLoginAt = &t
	u.LastLoginIP = ip
	u.LoginCount++
	u.UpdatedAt = at
}
