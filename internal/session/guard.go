package session

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
	"github.com/sheetmind/sheetmind-backend/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RouteClass is the static protection level of a route.
type RouteClass int

// Route classifications. Classification is defined per route, never
// inferred.
const (
	RoutePublic RouteClass = iota
	RouteRequiresSession
	RouteRequiresPermissionsSetup
)

// contextSessionKey is the gin context key holding the resolved session.
const contextSessionKey = "session"

// Classification maps exact request paths to their protection level.
// Unlisted paths require a session.
type Classification map[string]RouteClass

// DefaultClassification enumerates the application's route classes.
func DefaultClassification() Classification {
	return Classification{
		"/":                                    RoutePublic,
		"/about":                               RoutePublic,
		"/demos":                               RoutePublic,
		"/auth/login":                          RoutePublic,
		"/auth/signup":                         RoutePublic,
		"/auth/error":                          RoutePublic,
		"/auth/callback":                       RoutePublic,
		"/auth/google/callback":                RoutePublic,
		"/auth/microsoft/callback":             RoutePublic,
		"/auth/google-permissions-callback":    RouteRequiresSession,
		"/auth/microsoft-permissions-callback": RouteRequiresSession,
		"/auth/setup-permissions":              RouteRequiresSession,
		"/dashboard":                           RouteRequiresPermissionsSetup,
		"/usage":                               RouteRequiresSession,
		"/billing/portal-session":              RouteRequiresSession,
	}
}

// Classify returns the protection level for a path.
func (c Classification) Classify(path string) RouteClass {
	if class, ok := c[path]; ok {
		return class
	}
	return RouteRequiresSession
}

// Guard enforces route classification. Absent or expired sessions are
// redirected to the login entry point with the requested path
// preserved; API callers get the JSON error envelope instead.
func Guard(resolver Resolver, conn *gorm.DB, classification Classification) gin.HandlerFunc {
	return func(c *gin.Context) {
		class := classification.Classify(c.Request.URL.Path)
		if class == RoutePublic {
			c.Next()
			return
		}

		sess, errResolve := resolver.Resolve(c.Request.Context(), c.Request)
		if errResolve != nil {
			denySession(c, errResolve)
			return
		}
		if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
			// Present but expired: same as absent.
			denySession(c, apperrors.NewSessionAbsent())
			return
		}

		if class == RouteRequiresPermissionsSetup {
			var profile models.UserProfile
			errFind := conn.WithContext(c.Request.Context()).
				Select("permissions_setup_done").
				First(&profile, "id = ?", sess.UserID).Error
			if errFind != nil {
				if !errors.Is(errFind, gorm.ErrRecordNotFound) {
					log.WithError(errFind).Warn("session guard: profile lookup failed")
				}
				denySession(c, apperrors.NewSessionAbsent())
				return
			}
			if !profile.PermissionsSetupDone {
				c.Redirect(http.StatusFound, "/auth/setup-permissions")
				c.Abort()
				return
			}
		}

		c.Set(contextSessionKey, sess)
		c.Next()
	}
}

// denySession rejects the request per guard policy.
func denySession(c *gin.Context, err error) {
	if apperrors.IsCode(err, apperrors.CodeNetwork) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred"})
		return
	}
	if wantsHTML(c.Request) {
		q := url.Values{}
		q.Set("redirectTo", c.Request.URL.Path)
		c.Redirect(http.StatusFound, "/auth/login?"+q.Encode())
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.Envelope(apperrors.NewSessionAbsent()))
}

// wantsHTML reports whether the caller expects a browser navigation.
func wantsHTML(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// FromContext returns the session attached by the guard.
func FromContext(c *gin.Context) (Session, bool) {
	v, exists := c.Get(contextSessionKey)
	if !exists {
		return Session{}, false
	}
	sess, ok := v.(Session)
	return sess, ok
}
