package user

import (
	"context"

	"github.com/niat-ops/opsboard/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service sending password reset emails synchronously.
func NewServiceMock(conf *core.Config, repo Repository, mailSvc core.EmailService) Service {
	ConfigureTokens(conf.SecretKey, conf.PasswordResetTimeoutDelta)
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			logger:  core.NopLogger{},
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
