package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/user"
)

const uniqueViolation = "23505"

const userColumns = `id, name, email, role, assigned_tech_stacks, can_access_critical_points,
	can_access_post_internships, is_active, password_hash, created_at, updated_at, last_login`

// orderingColumns whitelists the fields users may be ordered by.
var orderingColumns = map[string]string{
	"name":      "name",
	"email":     "email",
	"role":      "role",
	"isActive":  "is_active",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"lastLogin": "last_login",
}

type dbUser struct {
	ID                       string         `db:"id"`
	Name                     string         `db:"name"`
	Email                    string         `db:"email"`
	Role                     string         `db:"role"`
	AssignedTechStacks       pq.StringArray `db:"assigned_tech_stacks"`
	CanAccessCriticalPoints  bool           `db:"can_access_critical_points"`
	CanAccessPostInternships bool           `db:"can_access_post_internships"`
	IsActive                 bool           `db:"is_active"`
	PasswordHash             []byte         `db:"password_hash"`
	CreatedAt                time.Time      `db:"created_at"`
	UpdatedAt                time.Time      `db:"updated_at"`
	LastLogin                null.Time      `db:"last_login"`
}

func toDBUser(usr user.User) dbUser {
	dbu := dbUser{
		ID:                       usr.ID,
		Name:                     usr.Name,
		Email:                    usr.Email,
		Role:                     usr.Role,
		AssignedTechStacks:       pq.StringArray(usr.AssignedTechStacks),
		CanAccessCriticalPoints:  usr.CanAccessCriticalPoints,
		CanAccessPostInternships: usr.CanAccessPostInternships,
		IsActive:                 usr.IsActive,
		PasswordHash:             usr.PasswordHash,
		CreatedAt:                usr.CreatedAt.UTC(),
		UpdatedAt:                usr.UpdatedAt.UTC(),
		LastLogin:                null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
	if dbu.AssignedTechStacks == nil {
		dbu.AssignedTechStacks = pq.StringArray{}
	}
	return dbu
}

func (dbu dbUser) toUser() user.User {
	return user.User{
		ID:                       dbu.ID,
		Name:                     dbu.Name,
		Email:                    dbu.Email,
		Role:                     dbu.Role,
		AssignedTechStacks:       []string(dbu.AssignedTechStacks),
		CanAccessCriticalPoints:  dbu.CanAccessCriticalPoints,
		CanAccessPostInternships: dbu.CanAccessPostInternships,
		IsActive:                 dbu.IsActive,
		PasswordHash:             dbu.PasswordHash,
		CreatedAt:                dbu.CreatedAt.UTC(),
		UpdatedAt:                dbu.UpdatedAt.UTC(),
		LastLogin:                dbu.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	q := "SELECT COUNT(*) FROM users WHERE lower(email) = lower($1)"
	args := []interface{}{email}
	if len(excludedIDs) > 0 {
		q += " AND NOT (id = ANY($2))"
		args = append(args, pq.Array(excludedIDs))
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, q, args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (` + userColumns + `) VALUES (
		:id, :name, :email, :role, :assigned_tech_stacks, :can_access_critical_points,
		:can_access_post_internships, :is_active, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, toDBUser(usr)); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

// buildQuery turns filter and ordering into a SELECT. Unknown ordering fields are ignored.
func buildQuery(filter user.QueryFilter, ordering ...core.DBOrdering) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, "(name ILIKE "+p+" OR email ILIKE "+p+")")
	}
	if len(filter.Roles) > 0 {
		where = append(where, "role = ANY("+arg(pq.Array(filter.Roles))+")")
	}
	if filter.IsActive != nil {
		where = append(where, "is_active = "+arg(*filter.IsActive))
	}
	if filter.TechStack != "" {
		where = append(where, "role = "+arg(user.RoleInstructor))
		where = append(where, "EXISTS (SELECT 1 FROM unnest(assigned_tech_stacks) s WHERE lower(s) = lower("+arg(filter.TechStack)+"))")
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	orderBy := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := orderingColumns[ord.Field]; ok {
			orderBy = append(orderBy, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	orderBy = append(orderBy, "created_at ASC")
	q += " ORDER BY " + strings.Join(orderBy, ", ")
	return q, args
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	q, args := buildQuery(filter, ordering...)

	var rows []dbUser
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo userRepository) getOne(ctx context.Context, where string, arg interface{}) (user.User, error) {
	var row dbUser
	err := repo.db.GetContext(ctx, &row, "SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.toUser(), nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getOne(ctx, "id = $1", id)
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getOne(ctx, "lower(email) = lower($1)", email)
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET
		name = :name, email = :email, role = :role, assigned_tech_stacks = :assigned_tech_stacks,
		can_access_critical_points = :can_access_critical_points,
		can_access_post_internships = :can_access_post_internships,
		is_active = :is_active, password_hash = :password_hash,
		updated_at = :updated_at, last_login = :last_login
	WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toDBUser(usr))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM users WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
