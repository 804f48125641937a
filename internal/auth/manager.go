// Package auth は認証・認可機能を提供します。
package auth

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/recipe-box/internal/users"
)

const (
	SessionCookieName    = "rb_session"
	sessionKeyUserID     = "auth_user_id"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
)

var (
	maxSessionLifetime = 12 * time.Hour
	idleTimeout        = 30 * time.Minute
	loginWindow        = 15 * time.Minute
	lockDuration       = 10 * time.Minute
	maxLoginAttempts   = 5
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// ContextUserKey は、ハンドラー間でログイン済みユーザーIDを共有するためのキーです。
const ContextUserKey = "auth.user_id"

// CurrentUserID は RequireLogin が設定したユーザーIDを取り出します。
func CurrentUserID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	users    *users.Store
	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewManager は認証マネージャーを作成します。
func NewManager(userStore *users.Store) *Manager {
	return &Manager{
		users:    userStore,
		attempts: make(map[string]*attemptState),
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup は POST /signup のハンドラーです。
// 登録成功はそのままログインとして扱い、セッションを確立します。
func (m *Manager) Signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "Username and password are required",
		})
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to process password",
		})
		return
	}

	user, err := m.users.Create(c.Request.Context(), req.Username, hash)
	if err != nil {
		if errors.Is(err, users.ErrDuplicateUsername) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Username already exists",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create user",
		})
		return
	}

	if err := establishSession(c, user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save session",
		})
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login は POST /login のハンドラーです。
// ユーザー名の存在有無を区別しない汎用メッセージのみを返します。
func (m *Manager) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid username or password",
		})
		return
	}

	ip := c.ClientIP()
	if retryAfter := m.checkLock(ip); retryAfter > 0 {
		// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "Too many login attempts",
		})
		return
	}

	user, err := m.users.GetByUsername(c.Request.Context(), req.Username)
	if err != nil || !CheckPasswordHash(req.Password, user.PasswordHash) {
		m.recordFailure(ip)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid username or password",
		})
		return
	}

	m.resetAttempts(ip)

	if err := establishSession(c, user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save session",
		})
		return
	}

	c.JSON(http.StatusOK, user)
}

// Logout は DELETE /logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	if _, ok := validSessionUserID(session); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "No user logged in",
		})
		return
	}

	session.Clear()
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to clear session",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckSession は GET /check_session のハンドラーです。
// セッションが指すユーザーが既に削除されている場合も未ログイン扱いにします。
func (m *Manager) CheckSession(c *gin.Context) {
	session := sessions.Default(c)
	userID, ok := validSessionUserID(session)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "No user logged in",
		})
		return
	}

	user, err := m.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			session.Clear()
			_ = session.Save()
		}
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "No user logged in",
		})
		return
	}

	c.JSON(http.StatusOK, user)
}

// RequireLogin はセッションを検証するミドルウェアを返します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := validSessionUserID(session)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized access",
			})
			return
		}

		session.Set(sessionKeyLastActive, time.Now().Unix())
		_ = session.Save()
		c.Set(ContextUserKey, userID)
		c.Next()
	}
}

// establishSession はログイン済みユーザーIDをセッションに書き込みます。
func establishSession(c *gin.Context, userID int64) error {
	session := sessions.Default(c)
	now := time.Now()
	session.Set(sessionKeyUserID, userID)
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	return session.Save()
}

// validSessionUserID はセッションからユーザーIDを取り出し、有効期限を検証します。
// 期限切れのセッションは破棄し、未ログインと同じ扱いにします。
func validSessionUserID(session sessions.Session) (int64, bool) {
	userID, ok := readUserID(session.Get(sessionKeyUserID))
	if !ok {
		return 0, false
	}

	now := time.Now()
	issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
	lastActive := readUnix(session.Get(sessionKeyLastActive))

	if issuedAt.IsZero() || now.Sub(issuedAt) > maxSessionLifetime {
		session.Clear()
		_ = session.Save()
		return 0, false
	}

	if lastActive.IsZero() || now.Sub(lastActive) > idleTimeout {
		session.Clear()
		_ = session.Save()
		return 0, false
	}

	return userID, true
}

func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	now := time.Now()
	if now.After(state.lockedUntil) {
		return 0
	}
	return time.Until(state.lockedUntil)
}

func (m *Manager) recordFailure(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := time.Now()
	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}
}

func (m *Manager) resetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}

func readUserID(v interface{}) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, id > 0
	case int:
		return int64(id), id > 0
	case float64:
		return int64(id), id > 0
	default:
		return 0, false
	}
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
