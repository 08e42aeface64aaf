package users

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// MaxNameLength bounds the name column.
	MaxNameLength = 255
	// MaxEmailLength bounds the email column.
	MaxEmailLength = 255
	// MinAge and MaxAge bound the age column (inclusive).
	MinAge = 0
	MaxAge = 130
)

// User is the single persisted entity. Email is globally unique and ID is
// assigned by the repository on insert.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u" json:"-"`

	ID    uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name  string    `bun:"name,notnull,type:varchar(255)" json:"name"`
	Email string    `bun:"email,notnull,unique,type:varchar(255)" json:"email"`
	Age   int       `bun:"age,notnull" json:"age"`
}

// CreateUser carries the fields required to insert a new user.
type CreateUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   *int   `json:"age"`
}

// UpdateUser carries a partial update. Nil fields are left untouched.
type UpdateUser struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Age   *int    `json:"age,omitempty"`
}

// Normalize trims surrounding whitespace from text fields.
func (in *CreateUser) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
}

// Validate checks field bounds for a create payload.
func (in CreateUser) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, MaxNameLength)),
		validation.Field(&in.Email, validation.Required, validation.Length(1, MaxEmailLength), is.EmailFormat),
		validation.Field(&in.Age, validation.NotNil, validation.Min(MinAge), validation.Max(MaxAge)),
	)
	return asValidationError(err)
}

// Normalize trims surrounding whitespace from the text fields that are set.
func (in *UpdateUser) Normalize() {
	if in.Name != nil {
		v := strings.TrimSpace(*in.Name)
		in.Name = &v
	}
	if in.Email != nil {
		v := strings.TrimSpace(*in.Email)
		in.Email = &v
	}
}

// Validate checks only the fields present in the payload.
func (in UpdateUser) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.NilOrNotEmpty, validation.RuneLength(1, MaxNameLength)),
		validation.Field(&in.Email, validation.NilOrNotEmpty, validation.Length(1, MaxEmailLength), is.EmailFormat),
		validation.Field(&in.Age, validation.Min(MinAge), validation.Max(MaxAge)),
	)
	return asValidationError(err)
}

// IsEmpty reports whether the payload sets no field at all.
func (in UpdateUser) IsEmpty() bool {
	return in.Name == nil && in.Email == nil && in.Age == nil
}

// Apply copies the present fields onto u.
func (in UpdateUser) Apply(u *User) {
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.Age != nil {
		u.Age = *in.Age
	}
}
