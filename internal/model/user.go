package model

import "time"

// User is the authenticated account returned by /v1/users/me.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	GoogleID  string    `json:"google_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuthToken holds the single persisted session token.
type AuthToken struct {
	ID        int64     `gorm:"primaryKey"`
	Token     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// AuthTokenRowID is the fixed primary key of the only AuthToken row.
const AuthTokenRowID int64 = 1
