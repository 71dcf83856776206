package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/internal/service"
	"mock_interview_backend/internal/util"
	"mock_interview_backend/pkg/database"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// unavailableEvaluator always fails like a timed out upstream.
type unavailableEvaluator struct{}

func (unavailableEvaluator) Name() string { return "unavailable" }

func (unavailableEvaluator) Evaluate(ctx context.Context, q service.QuestionView, answer json.RawMessage, ectx service.EvaluationContext) (*service.EvaluationResult, error) {
	return nil, errors.New("upstream timeout")
}

func (unavailableEvaluator) FollowUp(ctx context.Context, q service.QuestionView, answer json.RawMessage) (string, error) {
	return "", errors.New("upstream timeout")
}

type evaluateFixture struct {
	svc       *service.SessionService
	router    *gin.Engine
	candidate *model.User
	sessionID uint
	question  uint
}

func newEvaluateFixture(t *testing.T) *evaluateFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "interview.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.Migrate(db, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	newUser := func(email string, role model.UserRole) *model.User {
		u := &model.User{Email: email, Username: email, Password: "x", Role: role, IsActive: true}
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("create user: %v", err)
		}
		return u
	}
	interviewer := newUser("interviewer@example.com", model.RoleInterviewer)
	candidate := newUser("candidate@example.com", model.RoleCandidate)

	q := model.Question{
		Category:       "golang",
		Difficulty:     model.DifficultyMedium,
		QuestionType:   model.QuestionObjective,
		Prompt:         "Is a nil map readable?",
		ExpectedAnswer: datatypes.JSON(`{"answer":"yes"}`),
		MaxScore:       100,
	}
	if err := db.Create(&q).Error; err != nil {
		t.Fatalf("create question: %v", err)
	}

	svc := service.NewSessionService(
		repository.NewSessionRepository(db),
		repository.NewResponseRepository(db),
		repository.NewQuestionRepository(db),
		repository.NewUserRepository(db),
		db,
		service.NewStaticEvaluatorService(unavailableEvaluator{}, config.EvaluatorConfig{TimeoutSeconds: 5}),
		nil,
		nil,
	)

	ctx := context.Background()
	session, err := svc.Create(ctx, service.ActorFromUser(interviewer), service.CreateSessionRequest{
		Title:       "Go basics",
		CandidateID: candidate.ID,
		QuestionIDs: []uint{q.ID},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.Start(ctx, service.ActorFromUser(candidate), session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, service.ActorFromUser(candidate), session.ID, service.SubmitAnswerRequest{
		QuestionID: q.ID,
		Answer:     json.RawMessage(`{"answer":"yes"}`),
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user", &util.Claims{UserID: candidate.ID, Role: candidate.Role, TokenType: util.TokenTypeAccess})
	})
	router.POST("/api/sessions/:id/evaluate", NewSessionController(svc, nil).EvaluateAnswer)

	return &evaluateFixture{svc: svc, router: router, candidate: candidate, sessionID: session.ID, question: q.ID}
}

type evaluateBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Response struct {
			Score *float64 `json:"score"`
		} `json:"response"`
		Evaluation struct {
			Score         float64 `json:"score"`
			IsProvisional bool    `json:"isProvisional"`
			Provider      string  `json:"provider"`
		} `json:"evaluation"`
		SessionScore  *float64 `json:"sessionScore"`
		SessionStatus string   `json:"sessionStatus"`
	} `json:"data"`
}

func (f *evaluateFixture) evaluate(t *testing.T) (int, evaluateBody) {
	t.Helper()
	payload := fmt.Sprintf(`{"questionId":%d}`, f.question)
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/sessions/%d/evaluate", f.sessionID), bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var body evaluateBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return w.Code, body
}

// TestEvaluateAnswerProvisionalWhenEvaluatorDown verifies a failing evaluator yields 202 with a provisional, unsaved result.
func TestEvaluateAnswerProvisionalWhenEvaluatorDown(t *testing.T) {
	f := newEvaluateFixture(t)

	status, body := f.evaluate(t)
	if status != http.StatusAccepted || body.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%+v)", status, body)
	}
	if !body.Data.Evaluation.IsProvisional || body.Data.Evaluation.Provider != "provisional" {
		t.Fatalf("expected provisional evaluation, got %+v", body.Data.Evaluation)
	}
	if body.Data.Response.Score != nil || body.Data.SessionScore != nil {
		t.Fatalf("provisional result must not score anything: %+v", body.Data)
	}
	if body.Data.SessionStatus != string(model.StatusCompleted) {
		t.Fatalf("expected completed by submission count, got %s", body.Data.SessionStatus)
	}

	session, err := f.svc.Get(context.Background(), service.ActorFromUser(f.candidate), f.sessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if session.Score != nil || session.Responses[0].Score != nil {
		t.Fatalf("nothing should be persisted after a provisional evaluation")
	}
}

// TestEvaluateAnswerScoresAfterRecovery verifies a retry with a working evaluator returns 200 and persists the score.
func TestEvaluateAnswerScoresAfterRecovery(t *testing.T) {
	f := newEvaluateFixture(t)
	if status, _ := f.evaluate(t); status != http.StatusAccepted {
		t.Fatalf("expected 202 first, got %d", status)
	}

	f.svc.Evaluators = service.NewStaticEvaluatorService(service.NewHeuristicEvaluator(), config.EvaluatorConfig{TimeoutSeconds: 5})
	status, body := f.evaluate(t)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", status, body)
	}
	if body.Data.Evaluation.IsProvisional || body.Data.Response.Score == nil || *body.Data.Response.Score != 100 {
		t.Fatalf("expected a real score of 100, got %+v", body.Data)
	}
	if body.Data.SessionScore == nil || *body.Data.SessionScore != 100 {
		t.Fatalf("expected session score 100, got %v", body.Data.SessionScore)
	}
}
