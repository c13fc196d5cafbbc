package actors

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rxstock/rxstock/internal/platform/httpx"
)

// Header names populated by the auth gateway after session validation.
const (
	HeaderActorID        = "X-Actor-Id"
	HeaderActorUsername  = "X-Actor-Username"
	HeaderActorFirstName = "X-Actor-First-Name"
	HeaderActorLastName  = "X-Actor-Last-Name"
	HeaderActorDept      = "X-Actor-Department"
	HeaderActorAdmin     = "X-Actor-Admin"
)

// Middleware resolves the actor from gateway headers and stores it in context.
// Requests without a resolvable actor are rejected before any handler runs.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := fromHeaders(r)
			if err != nil {
				logger.Warn("reject unresolved actor",
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor not resolved")
				return
			}
			ctx := ContextWithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func fromHeaders(r *http.Request) (Actor, error) {
	id, err := strconv.ParseInt(r.Header.Get(HeaderActorID), 10, 64)
	if err != nil || id <= 0 {
		return Actor{}, ErrNoActor
	}
	dept := Department(r.Header.Get(HeaderActorDept))
	if !dept.IsValid() {
		return Actor{}, ErrUnknownDepartment
	}
	return Actor{
		ID:         id,
		Username:   r.Header.Get(HeaderActorUsername),
		FirstName:  r.Header.Get(HeaderActorFirstName),
		LastName:   r.Header.Get(HeaderActorLastName),
		Department: dept,
		Admin:      r.Header.Get(HeaderActorAdmin) == "1",
	}, nil
}
