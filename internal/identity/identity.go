// Package identity tells the service who is calling and in which role.
//
// Authentication happens upstream. The service only trusts the identity an
// authenticating gateway forwards with each request.
package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/apperr"
)

type Role string

const (
	Maker   Role = "maker"
	Checker Role = "checker"
)

func (r Role) Valid() bool {
	return r == Maker || r == Checker
}

type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

type Resolver interface {
	Resolve(r *http.Request) (Identity, error)
}

const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

// HeaderResolver reads the identity from gateway headers.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(r *http.Request) (Identity, error) {
	id := Identity{
		UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Role:   Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole)))),
	}
	if id.UserID == "" {
		return Identity{}, apperr.New(apperr.CodeInvalidInput, "identity", HeaderUserID+" header is required")
	}
	if !id.Role.Valid() {
		return Identity{}, apperr.Newf(apperr.CodeInvalidInput, "identity", "unknown role %q", id.Role)
	}
	return id, nil
}

type ctxKey struct{}

func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
