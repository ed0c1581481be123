// Package router binds the handlers to their routes and wraps the mux in
// the request-wide middleware.
//
// Route table (Go 1.22+ ServeMux patterns):
//
//	GET    /courses                     public   approved catalog, most enrolled first
//	POST   /courses                     instr.   create course (pending)
//	GET    /pending-courses             admin    review queue
//	PATCH  /pending-courses/{id}        admin    ?status=pending|approved
//	GET    /my-courses                  instr.   own courses
//	GET    /my-courses/{id}             instr.   one own course
//	PATCH  /my-courses/{id}             instr.   edit own course
//	GET    /instructors                 public   instructor users
//	POST   /users                       public   register (idempotent by email)
//	GET    /users                       admin    all users
//	GET    /users/role/{email}          auth     caller's own role
//	PATCH  /users/{id}                  admin    ?role=guest|student|instructor|admin
//	POST   /jwt                         public   session token (rate limited)
//	POST   /create-payment-intent       public   processor intent (rate limited)
//	POST   /payments                    public   record payment + enroll
//	GET    /payments/history            public   ?email=, newest first
//	GET    /payments/enrolledCourses    public   ?email=
//	POST   /cart                        student  add entry
//	GET    /cart                        student  own entries
//	DELETE /cart/{id}                   student  remove entry
//	GET    /healthz                     public   store ping
//	GET    /metrics                     public   Prometheus exposition
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aanand-mishra/coursemart-api/internal/auth"
	"github.com/aanand-mishra/coursemart-api/internal/http/handlers/cart"
	"github.com/aanand-mishra/coursemart-api/internal/http/handlers/course"
	"github.com/aanand-mishra/coursemart-api/internal/http/handlers/health"
	"github.com/aanand-mishra/coursemart-api/internal/http/handlers/payment"
	"github.com/aanand-mishra/coursemart-api/internal/http/handlers/token"
	"github.com/aanand-mishra/coursemart-api/internal/http/handlers/user"
	"github.com/aanand-mishra/coursemart-api/internal/http/middleware"
	"github.com/aanand-mishra/coursemart-api/internal/storage"
)

// Tokens issues and verifies session tokens.
type Tokens interface {
	Issue(email string) (string, error)
	Verify(token string) (*auth.Claims, error)
}

// Deps is everything the routes need. main builds it once.
type Deps struct {
	Store      storage.Storage
	Tokens     Tokens
	Roles      middleware.RoleLookup
	Enrollment payment.Enrollment
	Logger     *slog.Logger

	// Limiter guards /jwt and /create-payment-intent; nil disables it.
	Limiter    middleware.RateLimiter
	RateLimit  int
	RateWindow time.Duration

	// Metrics is created by New when nil.
	Metrics        *middleware.Metrics
	AllowedOrigins []string
}

// New returns the fully wired HTTP handler.
func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = middleware.NewMetrics()
	}
	authn := middleware.NewAuthenticator(d.Tokens, d.Roles, d.Logger)
	limited := func(route string, next http.HandlerFunc) http.HandlerFunc {
		return middleware.RateLimit(d.Limiter, d.Metrics, route, d.RateLimit, d.RateWindow, next)
	}

	mux := http.NewServeMux()

	// catalog
	mux.HandleFunc("GET /courses", course.List(d.Store))
	mux.HandleFunc("POST /courses", authn.Instructor(course.Create(d.Store)))
	mux.HandleFunc("GET /pending-courses", authn.Admin(course.ListPending(d.Store)))
	mux.HandleFunc("PATCH /pending-courses/{id}", authn.Admin(course.SetStatus(d.Store)))
	mux.HandleFunc("GET /my-courses", authn.Instructor(course.ListMine(d.Store)))
	mux.HandleFunc("GET /my-courses/{id}", authn.Instructor(course.GetMine(d.Store)))
	mux.HandleFunc("PATCH /my-courses/{id}", authn.Instructor(course.UpdateMine(d.Store)))

	// users and roles
	mux.HandleFunc("GET /instructors", user.ListInstructors(d.Store))
	mux.HandleFunc("POST /users", user.Register(d.Store))
	mux.HandleFunc("GET /users", authn.Admin(user.List(d.Store)))
	mux.HandleFunc("GET /users/role/{email}", authn.RequireAuth(user.GetRole(d.Roles)))
	mux.HandleFunc("PATCH /users/{id}", authn.Admin(user.SetRole(d.Store)))

	// tokens and payments
	mux.HandleFunc("POST /jwt", limited("POST /jwt", token.Issue(d.Tokens)))
	mux.HandleFunc("POST /create-payment-intent", limited("POST /create-payment-intent", payment.CreateIntent(d.Enrollment)))
	mux.HandleFunc("POST /payments", payment.Record(d.Enrollment))
	mux.HandleFunc("GET /payments/history", payment.History(d.Enrollment))
	mux.HandleFunc("GET /payments/enrolledCourses", payment.Enrolled(d.Enrollment))

	// cart
	mux.HandleFunc("POST /cart", authn.Student(cart.Add(d.Store, d.Store)))
	mux.HandleFunc("GET /cart", authn.Student(cart.List(d.Store)))
	mux.HandleFunc("DELETE /cart/{id}", authn.Student(cart.Delete(d.Store)))

	// operations
	mux.HandleFunc("GET /healthz", health.Check(d.Store))
	mux.Handle("GET /metrics", d.Metrics.Handler())

	return middleware.Chain(mux,
		middleware.Logger(d.Logger),
		d.Metrics.Middleware,
		middleware.CORS(d.AllowedOrigins),
	)
}
