package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aanand-mishra/coursemart-api/internal/auth"
	"github.com/aanand-mishra/coursemart-api/internal/config"
	"github.com/aanand-mishra/coursemart-api/internal/enrollment"
	"github.com/aanand-mishra/coursemart-api/internal/http/middleware"
	"github.com/aanand-mishra/coursemart-api/internal/payment"
	"github.com/aanand-mishra/coursemart-api/internal/storage/sqlite"
	"github.com/aanand-mishra/coursemart-api/internal/types"
)

type fakeProcessor struct{}

func (fakeProcessor) CreatePaymentIntent(ctx context.Context, amount int64, currency string) (payment.Intent, error) {
	return payment.Intent{ID: "pi_test", ClientSecret: "pi_test_secret", Amount: amount, Currency: currency}, nil
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	store   *sqlite.SQLite
	tokens  *auth.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.New(&config.Config{StoragePath: filepath.Join(t.TempDir(), "router.db")})
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tokens, err := auth.NewTokenService("router-test-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	limiter := middleware.NewMemoryRateLimiter()
	t.Cleanup(limiter.Close)

	h := New(Deps{
		Store:          store,
		Tokens:         tokens,
		Roles:          auth.NewRoleResolver(store),
		Enrollment:     enrollment.New(store, fakeProcessor{}, "usd", logger),
		Logger:         logger,
		Limiter:        limiter,
		RateLimit:      100,
		RateWindow:     time.Minute,
		AllowedOrigins: []string{"*"},
	})
	return &testServer{t: t, handler: h, store: store, tokens: tokens}
}

func (s *testServer) seedUser(email string, role types.Role) types.User {
	s.t.Helper()
	u, err := s.store.CreateUser(context.Background(), types.User{
		ID: uuid.NewString(), Name: email, Email: email, Role: role, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func (s *testServer) seedCourse(title string, available, total, students int, status types.CourseStatus) types.Course {
	s.t.Helper()
	c, err := s.store.CreateCourse(context.Background(), types.Course{
		ID: uuid.NewString(), Title: title, Price: 49.5,
		TotalSeats: total, AvailableSeats: available, Students: students,
		InstructorName: "Ira", InstructorEmail: "ira@example.com",
		Status: status, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.t.Fatalf("CreateCourse: %v", err)
	}
	return c
}

// do sends a request as email; an empty email sends no token.
func (s *testServer) do(method, path, email string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if email != "" {
		tok, err := s.tokens.Issue(email)
		if err != nil {
			s.t.Fatalf("Issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRoleGatedRoutesWithoutTokenAre401(t *testing.T) {
	s := newTestServer(t)
	course := s.seedCourse("Pending", 5, 5, 0, types.CourseStatusPending)

	cases := []struct{ method, path string }{
		{http.MethodGet, "/users"},
		{http.MethodGet, "/pending-courses"},
		{http.MethodPatch, "/pending-courses/" + course.ID + "?status=approved"},
		{http.MethodPost, "/courses"},
		{http.MethodGet, "/my-courses"},
		{http.MethodPost, "/cart"},
		{http.MethodGet, "/cart"},
		{http.MethodDelete, "/cart/x"},
		{http.MethodGet, "/users/role/alice@example.com"},
	}
	for _, tc := range cases {
		rec := s.do(tc.method, tc.path, "", map[string]string{"title": "x"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
	}

	got, _ := s.store.GetCourseByID(context.Background(), course.ID)
	if got.Status != types.CourseStatusPending {
		t.Fatal("course must not change without a token")
	}
}

func TestWrongRoleIs403WithoutMutation(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("alice@example.com", types.RoleStudent)
	course := s.seedCourse("Pending", 5, 5, 0, types.CourseStatusPending)

	rec := s.do(http.MethodPatch, "/pending-courses/"+course.ID+"?status=approved", "alice@example.com", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["error"] != true || body["message"] != "forbidden access" {
		t.Fatalf("unexpected body %v", body)
	}

	got, _ := s.store.GetCourseByID(context.Background(), course.ID)
	if got.Status != types.CourseStatusPending {
		t.Fatal("course must not change for a forbidden caller")
	}

	rec = s.do(http.MethodPost, "/courses", "alice@example.com", map[string]any{"title": "Nope", "totalSeats": 5})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("student creating a course: expected 403, got %d", rec.Code)
	}
	list, _ := s.store.ListCourses(context.Background(), types.CourseFilter{})
	if len(list) != 1 {
		t.Fatalf("no course should be created, have %d", len(list))
	}
}

func TestRegisterUserIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	payload := map[string]string{"name": "Alice", "email": "alice@example.com"}

	first := s.do(http.MethodPost, "/users", "", payload)
	if first.Code != http.StatusCreated {
		t.Fatalf("first registration: expected 201, got %d", first.Code)
	}
	created := decode[types.User](t, first)
	if created.Role != types.RoleStudent {
		t.Fatalf("new users default to student, got %q", created.Role)
	}

	second := s.do(http.MethodPost, "/users", "", payload)
	if second.Code != http.StatusOK {
		t.Fatalf("second registration: expected 200, got %d", second.Code)
	}
	if body := decode[map[string]any](t, second); body["message"] != "user already exists" {
		t.Fatalf("unexpected body %v", body)
	}

	users, _ := s.store.ListUsers(context.Background())
	if len(users) != 1 {
		t.Fatalf("expected one user, got %d", len(users))
	}
}

func TestRegisterRejectsPrivilegedRole(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/users", "", map[string]string{"email": "eve@example.com", "role": "admin"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCourseReviewWorkflow(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("root@example.com", types.RoleAdmin)
	s.seedUser("ira@example.com", types.RoleInstructor)

	rec := s.do(http.MethodPost, "/courses", "ira@example.com", map[string]any{
		"title": "Go in Practice", "price": 49.5, "totalSeats": 30, "status": "approved", "students": 99,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	created := decode[types.Course](t, rec)
	if created.Status != types.CourseStatusPending || created.AvailableSeats != 30 || created.Students != 0 {
		t.Fatalf("server-owned fields not enforced: %+v", created)
	}
	if created.InstructorEmail != "ira@example.com" {
		t.Fatalf("instructor email must come from the token, got %q", created.InstructorEmail)
	}

	pending := decode[[]types.Course](t, s.do(http.MethodGet, "/pending-courses", "root@example.com", nil))
	if len(pending) != 1 || pending[0].ID != created.ID {
		t.Fatalf("expected course in review queue, got %+v", pending)
	}
	public := decode[[]types.Course](t, s.do(http.MethodGet, "/courses", "", nil))
	if len(public) != 0 {
		t.Fatalf("pending course must not be public, got %+v", public)
	}

	rec = s.do(http.MethodPatch, "/pending-courses/"+created.ID+"?status=approved", "root@example.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", rec.Code)
	}

	pending = decode[[]types.Course](t, s.do(http.MethodGet, "/pending-courses", "root@example.com", nil))
	if len(pending) != 0 {
		t.Fatalf("approved course must leave the queue, got %+v", pending)
	}
	public = decode[[]types.Course](t, s.do(http.MethodGet, "/courses", "", nil))
	if len(public) != 1 || public[0].ID != created.ID {
		t.Fatalf("approved course must be public, got %+v", public)
	}
}

func TestSetStatusValidation(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("root@example.com", types.RoleAdmin)
	course := s.seedCourse("c", 5, 5, 0, types.CourseStatusPending)

	if rec := s.do(http.MethodPatch, "/pending-courses/"+course.ID+"?status=archived", "root@example.com", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPatch, "/pending-courses/missing?status=approved", "root@example.com", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown course: expected 404, got %d", rec.Code)
	}
}

func TestInstructorOwnership(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("ira@example.com", types.RoleInstructor)
	s.seedUser("ola@example.com", types.RoleInstructor)
	course := s.seedCourse("Ira's", 5, 5, 0, types.CourseStatusApproved)

	if rec := s.do(http.MethodGet, "/my-courses/"+course.ID, "ira@example.com", nil); rec.Code != http.StatusOK {
		t.Fatalf("owner read: expected 200, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/my-courses/"+course.ID, "ola@example.com", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign read: expected 403, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/my-courses/missing", "ira@example.com", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown course: expected 404, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/my-courses?email=ira@example.com", "ola@example.com", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("listing someone else's courses: expected 403, got %d", rec.Code)
	}

	rec := s.do(http.MethodPatch, "/my-courses/"+course.ID, "ola@example.com", map[string]any{"title": "Stolen"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign update: expected 403, got %d", rec.Code)
	}
	rec = s.do(http.MethodPatch, "/my-courses/"+course.ID, "ira@example.com", map[string]any{"title": "Renamed", "price": 59})
	if rec.Code != http.StatusOK {
		t.Fatalf("owner update: expected 200, got %d", rec.Code)
	}
	updated := decode[types.Course](t, rec)
	if updated.Title != "Renamed" || updated.Price != 59 || updated.AvailableSeats != 5 {
		t.Fatalf("unexpected update result %+v", updated)
	}

	mine := decode[[]types.Course](t, s.do(http.MethodGet, "/my-courses", "ira@example.com", nil))
	if len(mine) != 1 {
		t.Fatalf("expected one own course, got %d", len(mine))
	}
}

func TestPaymentEnrollsAndClearsCart(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("alice@example.com", types.RoleStudent)
	course := s.seedCourse("Popular", 5, 15, 10, types.CourseStatusApproved)

	rec := s.do(http.MethodPost, "/cart", "alice@example.com", map[string]string{"courseId": course.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add to cart: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec := s.do(http.MethodPost, "/cart", "alice@example.com", map[string]string{"courseId": course.ID}); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate cart entry: expected 409, got %d", rec.Code)
	}

	intent := s.do(http.MethodPost, "/create-payment-intent", "", map[string]float64{"price": course.Price})
	if intent.Code != http.StatusOK {
		t.Fatalf("intent: expected 200, got %d", intent.Code)
	}
	if body := decode[payment.Intent](t, intent); body.ClientSecret == "" || body.Amount != 4950 {
		t.Fatalf("unexpected intent %+v", body)
	}

	rec = s.do(http.MethodPost, "/payments", "", map[string]any{
		"email": "alice@example.com", "courseId": course.ID, "amount": course.Price, "transactionId": "pi_test",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("payment: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	result := decode[types.EnrollmentResult](t, rec)
	if result.AvailableSeats != 4 || result.Students != 11 || result.DeletedCount != 1 || result.InsertedID == "" {
		t.Fatalf("unexpected enrollment result %+v", result)
	}

	got, _ := s.store.GetCourseByID(context.Background(), course.ID)
	if got.AvailableSeats != 4 || got.Students != 11 {
		t.Fatalf("counters not updated: %+v", got)
	}
	cart := decode[[]types.CartEntry](t, s.do(http.MethodGet, "/cart", "alice@example.com", nil))
	if len(cart) != 0 {
		t.Fatalf("cart entry must be removed, got %+v", cart)
	}
	history := decode[[]types.PaymentRecord](t, s.do(http.MethodGet, "/payments/history?email=alice@example.com", "", nil))
	if len(history) != 1 || history[0].ID != result.InsertedID {
		t.Fatalf("payment not in history: %+v", history)
	}
}

func TestPaymentRejections(t *testing.T) {
	s := newTestServer(t)
	full := s.seedCourse("Full", 0, 10, 10, types.CourseStatusApproved)

	rec := s.do(http.MethodPost, "/payments", "", map[string]any{"email": "alice@example.com", "courseId": full.ID, "amount": 10})
	if rec.Code != http.StatusConflict {
		t.Fatalf("full course: expected 409, got %d", rec.Code)
	}
	rec = s.do(http.MethodPost, "/payments", "", map[string]any{"email": "alice@example.com", "courseId": "missing", "amount": 10})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown course: expected 404, got %d", rec.Code)
	}
	rec = s.do(http.MethodPost, "/payments", "", map[string]any{"email": "nope", "courseId": full.ID})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid payload: expected 400, got %d", rec.Code)
	}
	rec = s.do(http.MethodPost, "/create-payment-intent", "", map[string]float64{"price": 0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero price: expected 400, got %d", rec.Code)
	}

	history := decode[[]types.PaymentRecord](t, s.do(http.MethodGet, "/payments/history?email=alice@example.com", "", nil))
	if history == nil || len(history) != 0 {
		t.Fatalf("expected empty history array, got %#v", history)
	}
}

func TestGetRoleOnlyForSelf(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("alice@example.com", types.RoleStudent)

	rec := s.do(http.MethodGet, "/users/role/alice@example.com", "alice@example.com", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "{\"role\":\"student\"}\n" {
		t.Fatalf("own role: %d %q", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/users/role/alice@example.com", "bob@example.com", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "{\"role\":null}\n" {
		t.Fatalf("someone else's role: %d %q", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/users/role/ghost@example.com", "ghost@example.com", nil)
	if rec.Body.String() != "{\"role\":null}\n" {
		t.Fatalf("unknown user: %q", rec.Body.String())
	}
}

func TestAdminSetsRole(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("root@example.com", types.RoleAdmin)
	u := s.seedUser("ira@example.com", types.RoleStudent)

	if rec := s.do(http.MethodPatch, "/users/"+u.ID+"?role=wizard", "root@example.com", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid role: expected 400, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPatch, "/users/missing?role=instructor", "root@example.com", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPatch, "/users/"+u.ID+"?role=instructor", "root@example.com", nil); rec.Code != http.StatusOK {
		t.Fatalf("set role: expected 200, got %d", rec.Code)
	}

	instructors := decode[[]types.User](t, s.do(http.MethodGet, "/instructors", "", nil))
	if len(instructors) != 1 || instructors[0].Email != "ira@example.com" {
		t.Fatalf("unexpected instructors %+v", instructors)
	}
	users := decode[[]types.User](t, s.do(http.MethodGet, "/users", "root@example.com", nil))
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestPublicCoursesSortedAndLimited(t *testing.T) {
	s := newTestServer(t)
	for _, students := range []int{30, 50, 10, 40, 20} {
		s.seedCourse(fmt.Sprintf("c%d", students), 100, 200, students, types.CourseStatusApproved)
	}

	top := decode[[]types.Course](t, s.do(http.MethodGet, "/courses?limit=2", "", nil))
	if len(top) != 2 || top[0].Students != 50 || top[1].Students != 40 {
		t.Fatalf("unexpected top courses %+v", top)
	}
	if rec := s.do(http.MethodGet, "/courses?limit=abc", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", rec.Code)
	}
}

func TestCartScopedToCaller(t *testing.T) {
	s := newTestServer(t)
	s.seedUser("alice@example.com", types.RoleStudent)
	s.seedUser("bob@example.com", types.RoleStudent)
	course := s.seedCourse("c", 5, 5, 0, types.CourseStatusApproved)

	if rec := s.do(http.MethodPost, "/cart", "alice@example.com", map[string]string{"courseId": "missing"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown course: expected 404, got %d", rec.Code)
	}
	entry := decode[types.CartEntry](t, s.do(http.MethodPost, "/cart", "alice@example.com", map[string]string{"courseId": course.ID}))

	if rec := s.do(http.MethodGet, "/cart?email=alice@example.com", "bob@example.com", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign cart: expected 403, got %d", rec.Code)
	}

	rec := s.do(http.MethodDelete, "/cart/"+entry.ID, "bob@example.com", nil)
	if body := decode[map[string]int64](t, rec); body["deletedCount"] != 0 {
		t.Fatalf("foreign delete must not remove, got %v", body)
	}
	rec = s.do(http.MethodDelete, "/cart/"+entry.ID, "alice@example.com", nil)
	if body := decode[map[string]int64](t, rec); body["deletedCount"] != 1 {
		t.Fatalf("owner delete: got %v", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
	rec := s.do(http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("coursemart_api_http_requests_total")) {
		t.Fatalf("metrics: %d\n%s", rec.Code, rec.Body.String())
	}
}
