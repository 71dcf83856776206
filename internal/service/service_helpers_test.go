package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/pkg/database"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB opens a migrated sqlite database under the test temp dir.
func openTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, closeDB, err := openSQLite(filepath.Join(t.TempDir(), "interview.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(closeDB)
	return db
}

func openSQLite(path string) (*gorm.DB, func(), error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	// sqlite 单写者，单连接避免 database is locked
	sqlDB.SetMaxOpenConns(1)
	closeDB := func() { sqlDB.Close() }

	if err := database.Migrate(db, "sqlite"); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return db, closeDB, nil
}

// scriptedEvaluator returns queued scores in order, or err when set.
type scriptedEvaluator struct {
	mu     sync.Mutex
	scores []float64
	err    error
	calls  int
	follow string
}

func (e *scriptedEvaluator) Name() string { return "scripted" }

func (e *scriptedEvaluator) Evaluate(ctx context.Context, q QuestionView, answer json.RawMessage, ectx EvaluationContext) (*EvaluationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if len(e.scores) == 0 {
		return nil, errors.New("no scripted score left")
	}
	score := e.scores[0]
	e.scores = e.scores[1:]
	return normalizeResult(&EvaluationResult{Score: score, Feedback: "scripted", Confidence: 0.9}, e.Name()), nil
}

func (e *scriptedEvaluator) FollowUp(ctx context.Context, q QuestionView, answer json.RawMessage) (string, error) {
	if e.follow == "" {
		return "", errors.New("follow-up unavailable")
	}
	return e.follow, nil
}

// fakeGuard is an in-memory EvaluationGuard.
type fakeGuard struct {
	mu       sync.Mutex
	locked   map[string]bool
	counters map[string]int64
	lockErr  error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{locked: map[string]bool{}, counters: map[string]int64{}}
}

func (g *fakeGuard) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lockErr != nil {
		return nil, false, g.lockErr
	}
	if g.locked[key] {
		return nil, false, nil
	}
	g.locked[key] = true
	return func() {
		g.mu.Lock()
		delete(g.locked, key)
		g.mu.Unlock()
	}, true, nil
}

func (g *fakeGuard) IncrWithin(ctx context.Context, key string, window time.Duration) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[key]++
	return g.counters[key], nil
}

// recordingPublisher collects published session events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event SessionEvent) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// sessionFixture bundles a SessionService with seeded users and questions.
type sessionFixture struct {
	db          *gorm.DB
	svc         *SessionService
	evaluator   *scriptedEvaluator
	guard       *fakeGuard
	events      *recordingPublisher
	admin       Actor
	interviewer Actor
	candidate   Actor
	outsider    Actor
	questions   []model.Question
}

func newSessionFixture(t testing.TB) *sessionFixture {
	t.Helper()
	f, err := buildSessionFixture(openTestDB(t))
	if err != nil {
		t.Fatalf("session fixture: %v", err)
	}
	return f
}

func buildSessionFixture(db *gorm.DB) (*sessionFixture, error) {
	f := &sessionFixture{
		db:        db,
		evaluator: &scriptedEvaluator{},
		guard:     newFakeGuard(),
		events:    &recordingPublisher{},
	}

	users := []struct {
		actor     *Actor
		email     string
		role      model.UserRole
		superuser bool
	}{
		{&f.admin, "admin@example.com", model.RoleInterviewer, true},
		{&f.interviewer, "interviewer@example.com", model.RoleInterviewer, false},
		{&f.candidate, "candidate@example.com", model.RoleCandidate, false},
		{&f.outsider, "outsider@example.com", model.RoleCandidate, false},
	}
	for _, u := range users {
		user, err := insertUser(db, u.email, u.role, u.superuser)
		if err != nil {
			return nil, err
		}
		*u.actor = ActorFromUser(user)
	}

	for i := 1; i <= 3; i++ {
		q := model.Question{
			Category:       "golang",
			Difficulty:     model.DifficultyMedium,
			QuestionType:   model.QuestionObjective,
			Prompt:         fmt.Sprintf("question %d", i),
			ExpectedAnswer: datatypes.JSON(`{"answer":"yes"}`),
			MaxScore:       100,
		}
		if err := db.Create(&q).Error; err != nil {
			return nil, fmt.Errorf("create question: %w", err)
		}
		f.questions = append(f.questions, q)
	}

	evaluators := NewStaticEvaluatorService(f.evaluator, config.EvaluatorConfig{
		TimeoutSeconds:    5,
		MaxAttemptsPerDay: 10,
	})
	f.svc = NewSessionService(
		repository.NewSessionRepository(db),
		repository.NewResponseRepository(db),
		repository.NewQuestionRepository(db),
		repository.NewUserRepository(db),
		db,
		evaluators,
		f.guard,
		f.events,
	)
	return f, nil
}

func insertUser(db *gorm.DB, email string, role model.UserRole, superuser bool) (*model.User, error) {
	u := &model.User{
		Email:       email,
		Username:    email,
		Password:    "x",
		Role:        role,
		IsActive:    true,
		IsSuperuser: superuser,
	}
	if err := db.Create(u).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (f *sessionFixture) questionIDs(n int) []uint {
	ids := make([]uint, n)
	for i := 0; i < n; i++ {
		ids[i] = f.questions[i].ID
	}
	return ids
}

// startedSession creates and starts a session with the first n questions.
func (f *sessionFixture) startedSession(t testing.TB, n int) *model.InterviewSession {
	t.Helper()
	ctx := context.Background()
	interviewerID := f.interviewer.UserID
	session, err := f.svc.Create(ctx, f.interviewer, CreateSessionRequest{
		Title:         "Backend interview",
		CandidateID:   f.candidate.UserID,
		InterviewerID: &interviewerID,
		QuestionIDs:   f.questionIDs(n),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	started, err := f.svc.Start(ctx, f.candidate, session.ID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return started
}

func (f *sessionFixture) submit(t testing.TB, sessionID, questionID uint, answer string) *SubmitAnswerResult {
	t.Helper()
	result, err := f.svc.SubmitAnswer(context.Background(), f.candidate, sessionID, SubmitAnswerRequest{
		QuestionID: questionID,
		Answer:     json.RawMessage(answer),
	})
	if err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	return result
}
