package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/codearena/realtime/internal/database"
	"github.com/codearena/realtime/internal/types"
)

const (
	defaultJwtExpiration = time.Hour * 24
	tokenCookieKey       = "token"

	userIdClaim = "user-id"
	expClaim    = "exp"
)

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId int) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (int, bool) {
	userId, ok := ctx.Value(userIdKey).(int)

	return userId, ok
}

// CredentialVerifier validates issued bearer tokens and resolves them to a
// user. It backs both the REST auth middleware and in-band websocket
// authentication.
type CredentialVerifier struct {
	signingKey []byte
	db         database.Repository
}

func NewCredentialVerifier(signingKey []byte, db database.Repository) *CredentialVerifier {
	return &CredentialVerifier{
		signingKey: signingKey,
		db:         db,
	}
}

func (v *CredentialVerifier) createJwtForSession(user types.User, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: user.Id,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(v.signingKey)
}

func (v *CredentialVerifier) extractUserIdFromToken(tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return v.signingKey, nil
	})
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid user id claim")
	}

	return int(userId), nil
}

// VerifyCredential implements server.CredentialVerifier. The account lookup
// is bounded by ctx so a slow database cannot stall the caller indefinitely.
func (v *CredentialVerifier) VerifyCredential(ctx context.Context, tokenString string) (types.User, error) {
	userId, err := v.extractUserIdFromToken(tokenString)
	if err != nil {
		return types.User{}, err
	}

	type lookup struct {
		acct database.Account
		err  error
	}

	resCh := make(chan lookup, 1)
	go func() {
		acct, err := v.db.GetAccountById(userId)
		resCh <- lookup{acct: acct, err: err}
	}()

	select {
	case <-ctx.Done():
		return types.User{}, ctx.Err()
	case res := <-resCh:
		if res.err != nil {
			return types.User{}, fmt.Errorf("lookup account: %w", res.err)
		}
		return userFromAccount(res.acct), nil
	}
}

func userFromAccount(acct database.Account) types.User {
	return types.User{
		Id:           acct.Id,
		Username:     acct.Username,
		EmailAddress: acct.EmailAddress,
		AvatarUrl:    acct.AvatarUrl,
		CreatedAt:    acct.CreatedAt,
		UpdatedAt:    acct.UpdatedAt,
	}
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
