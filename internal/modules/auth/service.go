package auth

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"glazestudio/internal/pkg/logger"
	"glazestudio/internal/pkg/validator"
	"glazestudio/internal/slotapi"
)

const (
	msgInvalidCredentials = "Invalid credentials."
	msgBackendDown        = "Server error. Is backend running?"
)

type Service struct {
	backend  Authenticator
	sessions sessionIssuer
	log      *zap.Logger
}

func NewService(backend Authenticator, sessions sessionIssuer, l *zap.Logger) *Service {
	return &Service{backend: backend, sessions: sessions, log: logger.OrNop(l)}
}

// Login verifies the credentials with the backend and wraps the returned
// token in a signed session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	if validator.Validate(req) != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.backend.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, slotapi.ErrNetwork) {
			s.log.Warn("login backend unreachable", zap.Error(err))
			return nil, errors.Mark(err, ErrBackendUnavailable)
		}
		s.log.Info("login rejected", zap.String("username", req.Username), zap.Error(err))
		return nil, errors.Mark(err, ErrInvalidCredentials)
	}

	session, err := s.sessions.GenerateToken(req.Username, token)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "sign session"), ErrSessionNotIssued)
	}
	s.log.Info("admin logged in", zap.String("username", req.Username))
	return &LoginResult{Username: req.Username, SessionToken: session}, nil
}

// FailureMessage is the text the login form shows for err.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrSessionNotIssued):
		return msgBackendDown
	case errors.Is(err, ErrInvalidCredentials):
		if d := slotapi.Detail(err); d != "" {
			return d
		}
		return msgInvalidCredentials
	default:
		return msgBackendDown
	}
}
