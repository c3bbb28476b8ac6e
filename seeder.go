package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// AdminSeed describes the bootstrap administrator. It is skipped when
// Password is empty.
type AdminSeed struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Seeder creates the default roles and the bootstrap administrator. It
// can run any number of times.
type Seeder struct {
	repo   RepositoryManager
	hasher PasswordHasher
	roles  []SeedRole
	admin  AdminSeed
	logger Logger
}

func NewSeeder(repo RepositoryManager, hasher PasswordHasher) *Seeder {
	return &Seeder{
		repo:   repo,
		hasher: hasher,
		roles:  DefaultRoles(),
		logger: defLogger{},
	}
}

func (s *Seeder) WithLogger(l Logger) *Seeder {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *Seeder) WithRoles(roles ...SeedRole) *Seeder {
	s.roles = roles
	return s
}

func (s *Seeder) WithAdmin(admin AdminSeed) *Seeder {
	s.admin = admin
	return s
}

// Seed inserts missing roles and the administrator
func (s *Seeder) Seed(ctx context.Context) error {
	if err := s.SeedRoles(ctx); err != nil {
		return err
	}
	return s.SeedAdmin(ctx)
}

// SeedRoles inserts every configured role that does not exist yet. Role
// ids are derived from the name so every instance agrees on them.
func (s *Seeder) SeedRoles(ctx context.Context) error {
	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, seed := range s.roles {
			role := &Role{Name: seed.Name, Description: seed.Description}
			if id, err := hashid.NewUUID("role:" + seed.Name); err == nil {
				role.ID = id
			}

			created, err := s.repo.Roles().EnsureTx(ctx, tx, role)
			if err != nil {
				return errors.Wrap(err, errors.CategoryInternal, "unable to seed role "+seed.Name)
			}
			if created {
				s.logger.Info("seeded role", "role", seed.Name)
			}
		}
		return nil
	})
}

// SeedAdmin creates the administrator when it is configured and missing
func (s *Seeder) SeedAdmin(ctx context.Context) error {
	if s.admin.Password == "" || s.admin.Username == "" {
		s.logger.Debug("admin seed skipped, no credentials configured")
		return nil
	}

	hash, err := s.hasher.HashPassword(s.admin.Password)
	if err != nil {
		return err
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.repo.Users().GetByUsernameTx(ctx, tx, s.admin.Username); err == nil {
			return nil
		} else if !IsNotFound(err) {
			return err
		}

		role, err := s.repo.Roles().GetByNameTx(ctx, tx, RoleAdmin)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "admin role missing, seed roles first")
		}

		user, err := s.repo.Users().CreateTx(ctx, tx, &User{
			Username:       s.admin.Username,
			Email:          s.admin.Email,
			FirstName:      s.admin.FirstName,
			LastName:       s.admin.LastName,
			PasswordHash:   hash,
			EmailConfirmed: true,
		})
		if err != nil {
			return err
		}

		if err := s.repo.Memberships().AddTx(ctx, tx, user.ID, role.ID); err != nil {
			return err
		}

		s.logger.Info("seeded admin user", "username", user.Username)
		return nil
	})
}
