package recipes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/recipe-box/internal/auth"
	"github.com/yourusername/recipe-box/internal/users"
)

type stubUserGetter struct {
	user users.User
	err  error
}

func (s *stubUserGetter) GetByID(ctx context.Context, id int64) (users.User, error) {
	return s.user, s.err
}

func withTestUserID(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(auth.ContextUserKey, userID)
		c.Next()
	}
}

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListHandlerReturnsOwnerRecipes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM recipes").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "title", "instructions", "minutes_to_complete", "user_id", "username"}).
			AddRow(1, "Soup", "Boil", 20, 7, "alice"))

	router := gin.New()
	router.GET("/recipes", withTestUserID(7), ListHandler(store))

	rec := performJSON(t, router, http.MethodGet, "/recipes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var out []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if len(out) != 1 || out[0]["title"] != "Soup" {
		t.Fatalf("unexpected body: %v", out)
	}
	owner, _ := out[0]["user"].(map[string]any)
	if owner["username"] != "alice" {
		t.Fatalf("unexpected nested owner: %v", owner)
	}
	if _, leaked := out[0]["user_id"]; leaked {
		t.Fatal("internal user_id field must not be serialized")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestListHandlerWithoutSessionContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, _ := setupMockStore(t)

	router := gin.New()
	router.GET("/recipes", ListHandler(store))

	rec := performJSON(t, router, http.MethodGet, "/recipes", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestCreateHandlerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, mock := setupMockStore(t)
	owner := &stubUserGetter{user: users.User{ID: 7, Username: "alice"}}

	mock.ExpectQuery("INSERT INTO recipes").
		WithArgs("Soup", "Boil", 20, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	router := gin.New()
	router.POST("/recipes", withTestUserID(7), CreateHandler(store, owner))

	rec := performJSON(t, router, http.MethodPost, "/recipes", map[string]any{
		"title":               "Soup",
		"instructions":        "Boil",
		"minutes_to_complete": 20,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if out["id"] != float64(3) || out["title"] != "Soup" {
		t.Fatalf("unexpected body: %v", out)
	}
	nested, _ := out["user"].(map[string]any)
	if nested["username"] != "alice" || nested["id"] != float64(7) {
		t.Fatalf("unexpected nested owner: %v", nested)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestCreateHandlerUserDeleted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, _ := setupMockStore(t)
	owner := &stubUserGetter{err: users.ErrNotFound}

	router := gin.New()
	router.POST("/recipes", withTestUserID(7), CreateHandler(store, owner))

	rec := performJSON(t, router, http.MethodPost, "/recipes", map[string]any{
		"title":        "Soup",
		"instructions": "Boil",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if out["error"] != "User not found" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestCreateHandlerOwnerDeletedBeforeInsert(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, mock := setupMockStore(t)
	owner := &stubUserGetter{user: users.User{ID: 7, Username: "alice"}}

	// GetByIDの後でユーザーが削除されたケースはINSERTの外部キー違反として現れる
	mock.ExpectQuery("INSERT INTO recipes").
		WillReturnError(errors.New("constraint failed: FOREIGN KEY constraint failed (787)"))

	router := gin.New()
	router.POST("/recipes", withTestUserID(7), CreateHandler(store, owner))

	rec := performJSON(t, router, http.MethodPost, "/recipes", map[string]any{
		"title":        "Soup",
		"instructions": "Boil",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusNotFound, rec.Body.String())
	}

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if out["error"] != "User not found" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestCreateHandlerConstraintViolation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, mock := setupMockStore(t)
	owner := &stubUserGetter{user: users.User{ID: 7, Username: "alice"}}

	mock.ExpectQuery("INSERT INTO recipes").
		WillReturnError(errors.New("SQL logic error: CHECK constraint failed: length(title) > 0 (275)"))

	router := gin.New()
	router.POST("/recipes", withTestUserID(7), CreateHandler(store, owner))

	rec := performJSON(t, router, http.MethodPost, "/recipes", map[string]any{
		"title":        "Soup",
		"instructions": "Boil",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
	}

	// 制約違反のメッセージはそのままクライアントに渡る
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	msg, _ := out["error"].(string)
	if msg == "" || msg == "Failed to create recipe" {
		t.Fatalf("expected constraint message passthrough, got %q", msg)
	}
}
