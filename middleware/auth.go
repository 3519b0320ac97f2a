package middleware

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"tabkeep/pkg/logger"
)

type contextKey string

// UserIDContextKey holds the verified Firebase UID for the request.
const UserIDContextKey contextKey = "user_id"

var (
	authClient   *auth.Client
	firebaseOnce sync.Once
)

// getAuthClient initializes the Firebase Auth client on first use. Returns
// nil when Firebase is not configured; the gateway then runs with anonymous
// users only.
func getAuthClient() *auth.Client {
	firebaseOnce.Do(func() {
		log := logger.GetLogger("auth")
		ctx := context.Background()

		var opts []option.ClientOption
		if credFile := os.Getenv("FIREBASE_CREDENTIALS_FILE"); credFile != "" {
			opts = append(opts, option.WithCredentialsFile(credFile))
		} else if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			log.Info("Firebase credentials not configured, token verification disabled")
			return
		}

		app, err := firebase.NewApp(ctx, nil, opts...)
		if err != nil {
			log.Error("Failed to initialize Firebase app", err)
			return
		}

		client, err := app.Auth(ctx)
		if err != nil {
			log.Error("Failed to initialize Firebase auth client", err)
			return
		}

		authClient = client
		log.Info("Firebase auth client initialized")
	})

	return authClient
}

// OptionalAuthMiddleware verifies a Bearer ID token when one is presented.
// A verified token puts the UID into the request context, where it overrides
// any client-supplied user ID. Missing or invalid tokens do not block the
// request; unauthenticated chat is allowed.
func OptionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			next.ServeHTTP(w, r)
			return
		}

		client := getAuthClient()
		if client == nil {
			next.ServeHTTP(w, r)
			return
		}

		token, err := client.VerifyIDToken(r.Context(), parts[1])
		if err != nil {
			logger.GetLogger("auth").Warn("Token verification failed: " + err.Error())
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, token.UID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthenticatedUserID retrieves the verified UID from the context.
func GetAuthenticatedUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(string)
	return userID, ok && userID != ""
}
