package main

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/user"
)

// addUser updates the user owning email or creates it, then activates it with pwd.
func (cli *commandLine) addUser(ctx context.Context, name, email, role, pwd string) (user.User, error) {
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)

	usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
	exists := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, err
		}
		now := time.Now().UTC()
		usr = user.User{
			ID:                 uuid.NewString(),
			Name:               strings.SplitN(email, "@", 2)[0],
			Email:              email,
			AssignedTechStacks: []string{},
			CreatedAt:          now,
			UpdatedAt:          now,
		}
	}
	if name != "" {
		usr.Name = name
	}
	usr.Role = role
	usr.IsActive = true
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, errors.Wrap(err, "hashing password")
	}

	if exists {
		usr.UpdatedAt = time.Now().UTC()
		return cli.usrRepo.UpdateUser(ctx, usr)
	}
	return cli.usrRepo.CreateUser(ctx, usr)
}

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	usr, err := cli.usrRepo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	cli.printf("password of %s updated\n", usr.Email)
	return nil
}
