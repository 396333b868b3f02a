package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin       = "admin"
	RoleReader      = "reader"
	RoleContributor = "contributor"
)

const DefaultAvatar = "https://res.cloudinary.com/wayfarer/image/upload/v1/defaults/avatar.png"

type SocialLinks struct {
	Website   string `bson:"website,omitempty" json:"website,omitempty"`
	Twitter   string `bson:"twitter,omitempty" json:"twitter,omitempty"`
	Instagram string `bson:"instagram,omitempty" json:"instagram,omitempty"`
	Facebook  string `bson:"facebook,omitempty" json:"facebook,omitempty"`
	Youtube   string `bson:"youtube,omitempty" json:"youtube,omitempty"`
}

type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name     string             `bson:"name" json:"name"`
	Email    string             `bson:"email" json:"email"`
	Password string             `bson:"password,omitempty" json:"-"`
	Role     string             `bson:"role" json:"role"`

	Avatar      string      `bson:"avatar" json:"avatar"`
	Bio         string      `bson:"bio" json:"bio"`
	SocialLinks SocialLinks `bson:"socialLinks" json:"socialLinks"`
	IsPremium   bool        `bson:"isPremium" json:"isPremium"`

	Followers []primitive.ObjectID `bson:"followers" json:"followers"`
	Following []primitive.ObjectID `bson:"following" json:"following"`

	IsEmailVerified          bool       `bson:"isEmailVerified" json:"isEmailVerified"`
	EmailVerificationToken   string     `bson:"emailVerificationToken,omitempty" json:"-"`
	EmailVerificationExpires *time.Time `bson:"emailVerificationExpires,omitempty" json:"-"`
	PasswordResetToken       string     `bson:"passwordResetToken,omitempty" json:"-"`
	PasswordResetExpires     *time.Time `bson:"passwordResetExpires,omitempty" json:"-"`
	PasswordChangedAt        *time.Time `bson:"passwordChangedAt,omitempty" json:"-"`

	AuthProvider string `bson:"authProvider" json:"authProvider"`
	GoogleID     string `bson:"googleId,omitempty" json:"-"`

	IsActive  bool       `bson:"isActive" json:"isActive"`
	LastLogin *time.Time `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// NewUser returns a local account with defaults filled in. The password is
// hashed; callers must check the error.
func NewUser(name, email, password, role string) (*User, error) {
	now := time.Now()
	if role == "" {
		role = RoleReader
	}
	u := &User{
		ID:           primitive.NewObjectID(),
		Name:         strings.TrimSpace(name),
		Email:        NormalizeEmail(email),
		Role:         role,
		Avatar:       DefaultAvatar,
		Followers:    []primitive.ObjectID{},
		Following:    []primitive.ObjectID{},
		AuthProvider: "local",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword rehashes the password. Every password mutation goes through here.
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now()
	u.Password = string(hash)
	u.PasswordChangedAt = &now
	return nil
}

func (u *User) CheckPassword(plain string) bool {
	if u.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plain)) == nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicProfile is the view of a user that other visitors may see.
type PublicProfile struct {
	ID             primitive.ObjectID `json:"id"`
	Name           string             `json:"name"`
	Avatar         string             `json:"avatar"`
	Bio            string             `json:"bio"`
	Role           string             `json:"role"`
	SocialLinks    SocialLinks        `json:"socialLinks"`
	IsPremium      bool               `json:"isPremium"`
	FollowersCount int                `json:"followersCount"`
	FollowingCount int                `json:"followingCount"`
	CreatedAt      time.Time          `json:"createdAt"`
}

func (u *User) Public() PublicProfile {
	avatar := u.Avatar
	if avatar == "" {
		avatar = DefaultAvatar
	}
	return PublicProfile{
		ID:             u.ID,
		Name:           u.Name,
		Avatar:         avatar,
		Bio:            u.Bio,
		Role:           u.Role,
		SocialLinks:    u.SocialLinks,
		IsPremium:      u.IsPremium,
		FollowersCount: len(u.Followers),
		FollowingCount: len(u.Following),
		CreatedAt:      u.CreatedAt,
	}
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleReader, RoleContributor:
		return true
	}
	return false
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
