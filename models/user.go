package models

import (
	"strings"
	"time"
)

const UserTable = "users"

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"

	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User keeps its UUID string as the WebAuthn user handle (converted to []byte when used).
type User struct {
	ID        string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username  string  `gorm:"uniqueIndex;size:255;not null" json:"username"`
	AuthID    *string `gorm:"uniqueIndex;size:255" json:"authId,omitempty"`
	Email     string  `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FirstName string  `gorm:"size:100" json:"firstName"`
	LastName  string  `gorm:"size:100" json:"lastName"`
	Gender    string  `gorm:"size:20" json:"gender"`
	Role      string  `gorm:"size:20;not null;default:'customer';index" json:"role"`
	Status    string  `gorm:"size:20;not null;default:'active'" json:"status"`

	PasswordHash string `gorm:"size:100" json:"-"`

	LastLoginAt *time.Time `gorm:"index" json:"lastLoginAt,omitempty"`
	LastSeenAt  *time.Time `gorm:"index" json:"lastSeenAt,omitempty"`
	LoginCount  int64      `gorm:"not null;default:0" json:"loginCount"`
	LastLoginIP string     `gorm:"size:45" json:"-"`
	LastLoginUA string     `gorm:"size:255" json:"-"`

	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Credentials []Credential `json:"-"`
}

func (User) TableName() string { return UserTable }

func (u User) IsAdmin() bool  { return u.Role == RoleAdmin }
func (u User) IsActive() bool { return u.Status != StatusDisabled }

func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Actor is the identity a core operation runs as. It is resolved by the auth
// middleware and passed explicitly; the repository never reads session state.
type Actor struct {
	UserID   string
	Username string
	Role     string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Credential stores one registered passkey. CredentialID / PublicKey / AAGUID are binary.
type Credential struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          string    `gorm:"type:uuid;index" json:"userId"`
	CredentialID    []byte    `gorm:"uniqueIndex" json:"credentialId"`
	PublicKey       []byte    `json:"publicKey"`
	AttestationType string    `gorm:"size:64" json:"attestationType"`
	AAGUID          []byte    `json:"aaguid"`
	SignCount       uint32    `json:"signCount"`
	CloneWarning    bool      `json:"cloneWarning"`
	BackupEligible  bool      `json:"backupEligible"`
	BackupState     bool      `json:"backupState"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	LastUsedAt *time.Time `gorm:"index" json:"lastUsedAt,omitempty"`
}
