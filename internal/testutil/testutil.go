package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/familiar-chat/mediagate/internal/auth"
	"github.com/familiar-chat/mediagate/internal/database"
	"github.com/familiar-chat/mediagate/internal/database/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestJWTSecret = "test-secret-key-for-testing"
	TestJWTIssuer = "familiar-chat-test"
	TestBaseURL   = "https://storage.test/familiar-chat"
)

// SetupTestDB creates an in-memory SQLite database for testing. The pool is
// pinned to one connection: every new connection to ":memory:" would
// otherwise open a separate, empty database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// TestLogger discards everything below error.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func shortID(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}

func CreateTestOrg(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Node: models.Node{ID: shortID("org")},
		Name: "Test Organization",
	}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}
	return org
}

func CreateTestUser(t *testing.T, db *gorm.DB, orgID string) *models.User {
	t.Helper()

	user := &models.User{
		ID:             shortID("user"),
		OrganizationID: orgID,
		Name:           "Test User",
		Role:           "master",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func CreateTestVisitor(t *testing.T, db *gorm.DB, orgID string) *models.Visitor {
	t.Helper()

	visitor := &models.Visitor{
		ID:             shortID("visitor"),
		OrganizationID: orgID,
		Name:           "Test Visitor",
	}
	if err := db.Create(visitor).Error; err != nil {
		t.Fatalf("failed to create test visitor: %v", err)
	}
	return visitor
}

// CreateMembership maps accountID to principalID inside orgID. A nil
// principalID records a mapping with no owner.
func CreateMembership(t *testing.T, db *gorm.DB, accountID, orgID string, role models.Role, principalID *string) *models.Membership {
	t.Helper()

	m := &models.Membership{
		AccountID:      accountID,
		OrganizationID: orgID,
		Role:           role,
		PrincipalID:    principalID,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("failed to create membership: %v", err)
	}
	return m
}

func CreateTestConnection(t *testing.T, db *gorm.DB, orgID, visitorID, connID string, connected bool) {
	t.Helper()

	conn := &models.Connection{
		ID:             connID,
		OrganizationID: orgID,
		VisitorID:      visitorID,
		Connected:      connected,
	}
	if err := db.Create(conn).Error; err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
}

func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService(TestJWTSecret, TestJWTIssuer, 24*time.Hour)
}

func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, subject string) string {
	t.Helper()

	token, err := jwtService.GenerateToken(subject, nil)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// Upload describes one multipart file part.
type Upload struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

// ImageUpload is a small PNG part in the field every upload endpoint reads.
func ImageUpload() Upload {
	return Upload{
		Field:       "image_file",
		FileName:    "pixel.png",
		ContentType: "image/png",
		Data:        []byte("\x89PNG\r\n\x1a\nfake"),
	}
}

// UploadRequest builds a multipart request carrying up. An empty token sends
// no Authorization header.
func UploadRequest(t *testing.T, path string, up Upload, token string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if up.Field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+up.Field+`"; filename="`+up.FileName+`"`)
		if up.ContentType != "" {
			h.Set("Content-Type", up.ContentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("failed to create multipart part: %v", err)
		}
		if _, err := part.Write(up.Data); err != nil {
			t.Fatalf("failed to write multipart part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies: one organization with a
// user and a visitor, each mapped from its own authenticated account.
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Store      *MemoryStore
	Org        *models.Organization

	User           *models.User
	UserAccount    string
	UserToken      string
	Visitor        *models.Visitor
	VisitorAccount string
	VisitorToken   string
}

// NewTestContext creates a complete test setup
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	org := CreateTestOrg(t, db)

	user := CreateTestUser(t, db, org.ID)
	userAccount := shortID("uid")
	CreateMembership(t, db, userAccount, org.ID, models.RoleUser, &user.ID)

	visitor := CreateTestVisitor(t, db, org.ID)
	visitorAccount := shortID("vid")
	CreateMembership(t, db, visitorAccount, org.ID, models.RoleVisitor, &visitor.ID)

	return &TestSetup{
		DB:             db,
		JWTService:     jwtService,
		Store:          NewMemoryStore(TestBaseURL),
		Org:            org,
		User:           user,
		UserAccount:    userAccount,
		UserToken:      GenerateTestToken(t, jwtService, userAccount),
		Visitor:        visitor,
		VisitorAccount: visitorAccount,
		VisitorToken:   GenerateTestToken(t, jwtService, visitorAccount),
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
