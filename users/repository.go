package users

import (
	"context"

	"github.com/cockroachdb/errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repository is the entity store contract consumed by the cache layer.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// ListPage returns users ordered by name ascending.
	ListPage(ctx context.Context, limit, offset int) ([]*User, error)
	Insert(ctx context.Context, in CreateUser) (*User, error)
	ApplyPartialUpdate(ctx context.Context, u *User, in UpdateUser) (*User, error)
	Remove(ctx context.Context, u *User) error
}

var _ Repository = (*BunRepository)(nil)

// BunRepository implements Repository on top of a go-repository-bun base.
type BunRepository struct {
	db   *bun.DB
	base repository.Repository[*User]
}

// NewBunRepository wraps db. A nil db yields a repository that fails every
// call with ErrNotInitialized.
func NewBunRepository(db *bun.DB) *BunRepository {
	if db == nil {
		return &BunRepository{}
	}
	return &BunRepository{db: db, base: repository.NewRepository[*User](db, ModelHandlers())}
}

// ModelHandlers returns the go-repository-bun handlers for User.
func ModelHandlers() repository.ModelHandlers[*User] {
	return repository.ModelHandlers[*User]{
		NewRecord: func() *User {
			return &User{}
		},
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			u.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
}

// CreateSchema creates the users table if it does not exist yet.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return Unavailable(err, "create users table")
	}
	return nil
}

func (r *BunRepository) ready() error {
	if r == nil || r.base == nil {
		return ErrNotInitialized
	}
	return nil
}

func (r *BunRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	u, err := r.base.GetByID(ctx, id.String())
	if err != nil {
		if isNotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "user %s", id)
		}
		return nil, Unavailable(err, "get user")
	}
	if u == nil {
		return nil, errors.Wrapf(ErrNotFound, "user %s", id)
	}
	return u, nil
}

func (r *BunRepository) ListPage(ctx context.Context, limit, offset int) ([]*User, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	records, _, err := r.base.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr("?TableAlias.name ASC").
			OrderExpr("?TableAlias.id ASC").
			Limit(limit).
			Offset(offset)
	})
	if err != nil {
		return nil, Unavailable(err, "list users")
	}
	if records == nil {
		records = []*User{}
	}
	return records, nil
}

func (r *BunRepository) Insert(ctx context.Context, in CreateUser) (*User, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	record := &User{
		ID:    uuid.New(),
		Name:  in.Name,
		Email: in.Email,
	}
	if in.Age != nil {
		record.Age = *in.Age
	}

	created, err := r.base.Create(ctx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrapf(ErrConflict, "email %q", in.Email)
		}
		return nil, Unavailable(err, "insert user")
	}
	if created == nil {
		created = record
	}
	return created, nil
}

// ApplyPartialUpdate writes every column of u with the present fields of in
// applied. Zero values are written as given.
func (r *BunRepository) ApplyPartialUpdate(ctx context.Context, u *User, in UpdateUser) (*User, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	record := *u
	in.Apply(&record)

	res, err := r.db.NewUpdate().
		Model(&record).
		Column("name", "email", "age").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrapf(ErrConflict, "email %q", record.Email)
		}
		return nil, Unavailable(err, "update user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errors.Wrapf(ErrNotFound, "user %s", u.ID)
	}
	return &record, nil
}

func (r *BunRepository) Remove(ctx context.Context, u *User) error {
	if err := r.ready(); err != nil {
		return err
	}
	if err := r.base.Delete(ctx, u); err != nil {
		if isNotFound(err) {
			return errors.Wrapf(ErrNotFound, "user %s", u.ID)
		}
		return Unavailable(err, "delete user")
	}
	return nil
}
