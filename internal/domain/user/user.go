package user

import "errors"

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // never expose hash in JSON
	FullName     string `json:"fullName"`
	Gender       string `json:"gender"`
	DateOfBirth  string `json:"dateOfBirth"`
	Country      string `json:"country"`
}

// PublicProfile is the only user shape returned by read paths.
type PublicProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FullName    string `json:"fullName"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"dateOfBirth"`
	Country     string `json:"country"`
}

func (u User) Profile() PublicProfile {
	return PublicProfile{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		Gender:      u.Gender,
		DateOfBirth: u.DateOfBirth,
		Country:     u.Country,
	}
}

// NewUser is the row handed to the store on registration. The store assigns the id.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	Gender       string
	DateOfBirth  string
	Country      string
}

var (
	// username or email already taken
	ErrDuplicateUser = errors.New("user already exists")
	// unified for unknown username and wrong password
	ErrInvalidCredentials = errors.New("invalid user credentials")
	ErrNotFound           = errors.New("user not found")

	// bcrypt only reads the first MaxPasswordBytes bytes
	ErrPasswordTooLong = errors.New("password too long")
)

// MaxPasswordBytes is counted in bytes, not characters.
const MaxPasswordBytes = 72

type RegisterRequest struct {
	Username    string `json:"username" binding:"required,max=64"`
	Email       string `json:"email" binding:"required,email,max=254"`
	Password    string `json:"password" binding:"required,maxbytes=72"`
	FullName    string `json:"fullName" binding:"required"`
	Gender      string `json:"gender" binding:"required"`
	DateOfBirth string `json:"dateOfBirth" binding:"required"`
	Country     string `json:"country" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,maxbytes=72"`
}

type TokenResponse struct {
	Token string `json:"token"`
}
