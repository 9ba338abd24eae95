package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/esim-portal/internal/database"
	"github.com/thereayou/esim-portal/internal/models"
	"github.com/thereayou/esim-portal/pkg/auth"
)

var (
	ErrAuth              = errors.New("authentication failed")
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrAuth)
	ErrInvalidCredential = fmt.Errorf("%w: invalid credential", ErrAuth)
	ErrRevokedCredential = fmt.Errorf("%w: credential revoked", ErrAuth)
	ErrUnknownActor      = fmt.Errorf("%w: actor no longer exists", ErrAuth)
)

// Identity результат аутентификации. Роль читается из профиля один раз
// при подключении и дальше не перепроверяется.
type Identity struct {
	ActorID     uuid.UUID
	Role        models.Role
	DisplayName string
	Email       string
}

func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

type UserStore interface {
	GetUser(id uuid.UUID) (*models.User, error)
}

type Authenticator struct {
	jwt       *auth.JWTManager
	users     UserStore
	blacklist TokenBlacklist
}

func NewAuthenticator(jwt *auth.JWTManager, users UserStore, blacklist TokenBlacklist) *Authenticator {
	return &Authenticator{jwt: jwt, users: users, blacklist: blacklist}
}

// Authenticate проверяет токен и загружает профиль актора. Ошибки
// проверки оборачивают ErrAuth; сбой Redis или БД возвращается как есть.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	if a.blacklist != nil {
		revoked, err := a.blacklist.IsRevoked(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("blacklist lookup: %w", err)
		}
		if revoked {
			return nil, ErrRevokedCredential
		}
	}

	session, err := a.jwt.Parse(token)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	user, err := a.users.GetUser(session.ActorID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUnknownActor
		}
		return nil, err
	}

	return &Identity{
		ActorID:     user.ID,
		Role:        user.Role,
		DisplayName: user.Name,
		Email:       user.Email,
	}, nil
}

// Issue выдаёт токен сессии после проверки пароля
func (a *Authenticator) Issue(actorID uuid.UUID) (auth.IssuedToken, error) {
	return a.jwt.Issue(actorID)
}

// Revoke держит токен в чёрном списке до конца его срока
func (a *Authenticator) Revoke(ctx context.Context, token string) error {
	session, err := a.jwt.Parse(token)
	if err != nil {
		return ErrInvalidCredential
	}
	if a.blacklist == nil {
		return nil
	}
	if err := a.blacklist.Revoke(ctx, token, session.Remaining(time.Now())); err != nil {
		return fmt.Errorf("blacklist revoke: %w", err)
	}
	return nil
}
