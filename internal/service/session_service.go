package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/internal/util"
	"mock_interview_backend/pkg/logger"
	"mock_interview_backend/pkg/monitoring"
	"mock_interview_backend/pkg/tracing"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EvaluationGuard 分布式锁与计数器，由 redis 提供；为 nil 时跳过
type EvaluationGuard interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error)
	IncrWithin(ctx context.Context, key string, window time.Duration) (int64, error)
}

const (
	EventSessionStarted   = "session_started"
	EventAnswerSubmitted  = "answer_submitted"
	EventAnswerEvaluated  = "answer_evaluated"
	EventSessionCompleted = "session_completed"
	EventSessionCancelled = "session_cancelled"
	EventSessionAbandoned = "session_abandoned"
)

type SessionEvent struct {
	Type       string              `json:"type"`
	SessionID  uint                `json:"sessionId"`
	Status     model.SessionStatus `json:"status"`
	QuestionID uint                `json:"questionId,omitempty"`
	Score      *float64            `json:"score,omitempty"`
	At         time.Time           `json:"at"`
}

// SessionEventPublisher 会话事件推送；为 nil 时不推送
type SessionEventPublisher interface {
	Publish(ctx context.Context, event SessionEvent)
}

const evaluationAttemptWindow = 24 * time.Hour

type SessionService struct {
	SessionRepo  *repository.SessionRepository
	ResponseRepo *repository.ResponseRepository
	QuestionRepo *repository.QuestionRepository
	UserRepo     *repository.UserRepository
	DB           *gorm.DB
	Evaluators   *EvaluatorService
	Guard        EvaluationGuard
	Events       SessionEventPublisher
}

func NewSessionService(
	sessionRepo *repository.SessionRepository,
	responseRepo *repository.ResponseRepository,
	questionRepo *repository.QuestionRepository,
	userRepo *repository.UserRepository,
	db *gorm.DB,
	evaluators *EvaluatorService,
	guard EvaluationGuard,
	events SessionEventPublisher,
) *SessionService {
	return &SessionService{
		SessionRepo:  sessionRepo,
		ResponseRepo: responseRepo,
		QuestionRepo: questionRepo,
		UserRepo:     userRepo,
		DB:           db,
		Evaluators:   evaluators,
		Guard:        guard,
		Events:       events,
	}
}

type CreateSessionRequest struct {
	Title         string                 `json:"title" binding:"required"`
	Description   string                 `json:"description"`
	CandidateID   uint                   `json:"candidateId" binding:"required"`
	InterviewerID *uint                  `json:"interviewerId"`
	QuestionIDs   []uint                 `json:"questionIds"`
	ScheduledAt   *time.Time             `json:"scheduledAt"`
	TimeLimit     *int                   `json:"timeLimit"`
	Metadata      map[string]interface{} `json:"metadata"`
}

type UpdateSessionRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	ScheduledAt *time.Time             `json:"scheduledAt"`
	TimeLimit   *int                   `json:"timeLimit"`
	Metadata    map[string]interface{} `json:"metadata"`
	QuestionIDs *[]uint                `json:"questionIds"`
}

type SubmitAnswerRequest struct {
	QuestionID     uint            `json:"questionId" binding:"required"`
	Answer         json.RawMessage `json:"answer" swaggertype:"object"`
	ProcessingTime *float64        `json:"processingTime"`
}

type SubmitAnswerResult struct {
	Response      *model.InterviewResponse `json:"response"`
	SessionStatus model.SessionStatus      `json:"sessionStatus"`
	Completed     bool                     `json:"completed"`
}

type EvaluateAnswerRequest struct {
	QuestionID uint `json:"questionId" binding:"required"`
}

type EvaluationOutcome struct {
	Response      *model.InterviewResponse `json:"response"`
	Evaluation    *EvaluationResult        `json:"evaluation"`
	SessionScore  *float64                 `json:"sessionScore"`
	SessionStatus model.SessionStatus      `json:"sessionStatus"`
}

type FollowUpRequest struct {
	QuestionID uint `json:"questionId" binding:"required"`
}

type FollowUpResult struct {
	QuestionID       uint   `json:"questionId"`
	FollowUpQuestion string `json:"followUpQuestion"`
	Provider         string `json:"provider"`
	IsMock           bool   `json:"isMock"`
}

type SessionListQuery struct {
	Status        model.SessionStatus
	CandidateID   *uint
	InterviewerID *uint
	Skip          int
	Limit         int
}

type SessionSummary struct {
	SessionID          uint                `json:"sessionId"`
	Title              string              `json:"title"`
	Status             model.SessionStatus `json:"status"`
	CandidateID        uint                `json:"candidateId"`
	InterviewerID      *uint               `json:"interviewerId,omitempty"`
	TotalQuestions     int64               `json:"totalQuestions"`
	QuestionsAnswered  int                 `json:"questionsAnswered"`
	QuestionsEvaluated int                 `json:"questionsEvaluated"`
	AverageScore       *float64            `json:"averageScore"`
	TimeSpent          float64             `json:"timeSpent"` // 秒
	StartedAt          *time.Time          `json:"startedAt,omitempty"`
	CompletedAt        *time.Time          `json:"completedAt,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, util.ErrNotFound)
	}
	return err
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// loadQuestions 任一题目不存在即返回 NotFound
func (s *SessionService) loadQuestions(repo *repository.QuestionRepository, ids []uint) ([]model.Question, error) {
	ids = dedupeIDs(ids)
	questions, err := repo.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	if len(questions) != len(ids) {
		return nil, fmt.Errorf("question: %w", util.ErrNotFound)
	}
	return questions, nil
}

// validateAnswer 拒绝空答案与非法 JSON
func validateAnswer(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return fmt.Errorf("answer must be valid JSON: %w", util.ErrInvalidArgument)
	}
	parsed := gjson.ParseBytes(trimmed)
	switch {
	case parsed.Type == gjson.Null:
		return fmt.Errorf("answer is required: %w", util.ErrInvalidArgument)
	case parsed.Type == gjson.String && strings.TrimSpace(parsed.String()) == "":
		return fmt.Errorf("answer is empty: %w", util.ErrInvalidArgument)
	case parsed.IsObject() && len(parsed.Map()) == 0,
		parsed.IsArray() && len(parsed.Array()) == 0:
		return fmt.Errorf("answer is empty: %w", util.ErrInvalidArgument)
	}
	return nil
}

func (s *SessionService) publish(ctx context.Context, event SessionEvent) {
	if s.Events == nil {
		return
	}
	event.At = time.Now()
	s.Events.Publish(ctx, event)
}

func (s *SessionService) transitioned(ctx context.Context, sessionID uint, to model.SessionStatus, eventType string) {
	monitoring.SessionTransitions.WithLabelValues(string(to)).Inc()
	logger.Log.Info("Interview session transitioned",
		zap.Uint("session_id", sessionID),
		zap.String("to", string(to)),
	)
	s.publish(ctx, SessionEvent{Type: eventType, SessionID: sessionID, Status: to})
}

// Create 面试官或管理员创建草稿会话
func (s *SessionService) Create(ctx context.Context, actor Actor, req CreateSessionRequest) (*model.InterviewSession, error) {
	if !actor.canCreateSession() {
		return nil, util.ErrForbidden
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", util.ErrInvalidArgument)
	}

	db := s.DB.WithContext(ctx)
	users := s.UserRepo.WithTx(db)
	if ok, err := users.Exists(req.CandidateID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("candidate: %w", util.ErrNotFound)
	}

	interviewerID := req.InterviewerID
	if interviewerID == nil && !actor.IsSuperuser {
		interviewerID = &actor.UserID
	}
	if interviewerID != nil {
		if ok, err := users.Exists(*interviewerID); err != nil {
			return nil, err
		} else if !ok {
			return nil, fmt.Errorf("interviewer: %w", util.ErrNotFound)
		}
	}

	questions, err := s.loadQuestions(s.QuestionRepo.WithTx(db), req.QuestionIDs)
	if err != nil {
		return nil, err
	}

	session := &model.InterviewSession{
		Title:         title,
		Description:   req.Description,
		Status:        model.StatusDraft,
		CandidateID:   req.CandidateID,
		InterviewerID: interviewerID,
		CreatedBy:     actor.UserID,
		Questions:     questions,
		ScheduledAt:   req.ScheduledAt,
		TimeLimit:     req.TimeLimit,
		Metadata:      datatypes.JSONMap(req.Metadata),
	}
	if err := s.SessionRepo.WithTx(db).Create(session); err != nil {
		return nil, err
	}

	monitoring.SessionTransitions.WithLabelValues(string(model.StatusDraft)).Inc()
	logger.Log.Info("Interview session created",
		zap.Uint("session_id", session.ID),
		zap.Uint("candidate_id", session.CandidateID),
		zap.Int("questions", len(questions)),
	)
	return s.SessionRepo.WithTx(db).FindWithDetails(session.ID)
}

// Get 会话详情，包含题目、作答与参与者
func (s *SessionService) Get(ctx context.Context, actor Actor, id uint) (*model.InterviewSession, error) {
	session, err := s.SessionRepo.WithTx(s.DB.WithContext(ctx)).FindWithDetails(id)
	if err != nil {
		return nil, notFound(err, "session")
	}
	if !actor.canView(session) {
		return nil, util.ErrForbidden
	}
	return session, nil
}

// List 非管理员只能查看自己参与的会话
func (s *SessionService) List(ctx context.Context, actor Actor, q SessionListQuery) ([]SessionSummary, int64, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, 0, fmt.Errorf("unknown status %q: %w", q.Status, util.ErrInvalidArgument)
	}
	if !actor.IsSuperuser {
		if q.CandidateID != nil && *q.CandidateID != actor.UserID {
			return nil, 0, util.ErrForbidden
		}
		if q.InterviewerID != nil && *q.InterviewerID != actor.UserID {
			return nil, 0, util.ErrForbidden
		}
		if q.CandidateID == nil && q.InterviewerID == nil {
			self := actor.UserID
			if actor.Role == model.RoleInterviewer {
				q.InterviewerID = &self
			} else {
				q.CandidateID = &self
			}
		}
	}

	skip, limit := util.ClampPage(q.Skip, q.Limit)
	sessions := s.SessionRepo.WithTx(s.DB.WithContext(ctx))
	list, total, err := sessions.List(repository.SessionFilter{
		Status:        q.Status,
		CandidateID:   q.CandidateID,
		InterviewerID: q.InterviewerID,
		Skip:          skip,
		Limit:         limit,
	})
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uint, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	counts, err := sessions.CountQuestionsBySessions(ids)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]SessionSummary, len(list))
	for i := range list {
		summaries[i] = buildSummary(&list[i], counts[list[i].ID])
	}
	return summaries, total, nil
}

func buildSummary(session *model.InterviewSession, totalQuestions int64) SessionSummary {
	var scores []float64
	var timeSpent float64
	for _, r := range session.Responses {
		if r.Score != nil {
			scores = append(scores, *r.Score)
		}
		if r.ProcessingTime != nil {
			timeSpent += *r.ProcessingTime
		}
	}
	return SessionSummary{
		SessionID:          session.ID,
		Title:              session.Title,
		Status:             session.Status,
		CandidateID:        session.CandidateID,
		InterviewerID:      session.InterviewerID,
		TotalQuestions:     totalQuestions,
		QuestionsAnswered:  len(session.Responses),
		QuestionsEvaluated: len(scores),
		AverageScore:       AggregateScore(scores),
		TimeSpent:          timeSpent,
		StartedAt:          session.StartedAt,
		CompletedAt:        session.CompletedAt,
		CreatedAt:          session.CreatedAt,
	}
}

func (s *SessionService) Summary(ctx context.Context, actor Actor, id uint) (*SessionSummary, error) {
	sessions := s.SessionRepo.WithTx(s.DB.WithContext(ctx))
	session, err := sessions.FindWithDetails(id)
	if err != nil {
		return nil, notFound(err, "session")
	}
	if !actor.canView(session) {
		return nil, util.ErrForbidden
	}
	total, err := sessions.CountQuestions(id)
	if err != nil {
		return nil, err
	}
	summary := buildSummary(session, total)
	return &summary, nil
}

// Update 修改会话信息；题目集合仅在草稿状态可替换，状态不能通过此接口修改
func (s *SessionService) Update(ctx context.Context, actor Actor, id uint, req UpdateSessionRequest) (*model.InterviewSession, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := s.SessionRepo.WithTx(tx)
		session, err := sessions.LockByID(id)
		if err != nil {
			return notFound(err, "session")
		}
		if !actor.canManage(session) {
			return util.ErrForbidden
		}

		fields := map[string]interface{}{}
		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" {
				return fmt.Errorf("title is required: %w", util.ErrInvalidArgument)
			}
			fields["title"] = title
		}
		if req.Description != nil {
			fields["description"] = *req.Description
		}
		if req.ScheduledAt != nil {
			fields["scheduled_at"] = *req.ScheduledAt
		}
		if req.TimeLimit != nil {
			fields["time_limit"] = *req.TimeLimit
		}
		if req.Metadata != nil {
			fields["metadata"] = datatypes.JSONMap(req.Metadata)
		}

		if req.QuestionIDs != nil {
			if session.Status != model.StatusDraft {
				return fmt.Errorf("questions can only change in draft, session is %s: %w", session.Status, util.ErrInvalidState)
			}
			questions, err := s.loadQuestions(s.QuestionRepo.WithTx(tx), *req.QuestionIDs)
			if err != nil {
				return err
			}
			if err := sessions.ReplaceQuestions(session, questions); err != nil {
				return err
			}
		}

		if len(fields) == 0 {
			return nil
		}
		return sessions.UpdateFields(id, fields)
	})
	if err != nil {
		return nil, err
	}
	return s.SessionRepo.WithTx(s.DB.WithContext(ctx)).FindWithDetails(id)
}

// Start draft -> in_progress
func (s *SessionService) Start(ctx context.Context, actor Actor, id uint) (*model.InterviewSession, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := s.SessionRepo.WithTx(tx)
		session, err := sessions.LockByID(id)
		if err != nil {
			return notFound(err, "session")
		}
		if !actor.canView(session) {
			return util.ErrForbidden
		}
		if session.Status != model.StatusDraft {
			return fmt.Errorf("session is %s: %w", session.Status, util.ErrInvalidState)
		}
		count, err := sessions.CountQuestions(id)
		if err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("session has no questions: %w", util.ErrInvalidArgument)
		}
		return sessions.UpdateFields(id, map[string]interface{}{
			"status":     model.StatusInProgress,
			"started_at": time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(ctx, id, model.StatusInProgress, EventSessionStarted)
	return s.SessionRepo.WithTx(s.DB.WithContext(ctx)).FindByID(id)
}

// SubmitAnswer 同一 (session, question) 只保留一条作答；全部题目作答后会话自动完成
func (s *SessionService) SubmitAnswer(ctx context.Context, actor Actor, sessionID uint, req SubmitAnswerRequest) (*SubmitAnswerResult, error) {
	var result SubmitAnswerResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := s.SessionRepo.WithTx(tx)
		responses := s.ResponseRepo.WithTx(tx)

		session, err := sessions.LockByID(sessionID)
		if err != nil {
			return notFound(err, "session")
		}
		if !actor.canSubmit(session) {
			return util.ErrForbidden
		}
		if session.Status != model.StatusInProgress {
			return fmt.Errorf("session is %s: %w", session.Status, util.ErrInvalidState)
		}
		ok, err := sessions.HasQuestion(sessionID, req.QuestionID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("question %d is not part of session: %w", req.QuestionID, util.ErrNotFound)
		}
		if err := validateAnswer(req.Answer); err != nil {
			return err
		}
		if req.ProcessingTime != nil && *req.ProcessingTime < 0 {
			return fmt.Errorf("processingTime must not be negative: %w", util.ErrInvalidArgument)
		}

		answer := datatypes.JSON(bytes.TrimSpace(req.Answer))
		existing, err := responses.FindByPair(sessionID, req.QuestionID)
		switch {
		case err == nil && existing.Scored():
			return fmt.Errorf("response already evaluated: %w", util.ErrInvalidState)
		case err == nil:
			if err := responses.UpdateAnswer(existing.ID, answer, req.ProcessingTime); err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := responses.Upsert(&model.InterviewResponse{
				SessionID:      sessionID,
				QuestionID:     req.QuestionID,
				UserAnswer:     answer,
				AnswerVersion:  1,
				ProcessingTime: req.ProcessingTime,
			}); err != nil {
				return err
			}
		default:
			return err
		}

		answered, err := responses.CountBySession(sessionID)
		if err != nil {
			return err
		}
		total, err := sessions.CountQuestions(sessionID)
		if err != nil {
			return err
		}
		result.SessionStatus = session.Status
		if total > 0 && answered == total {
			if err := sessions.UpdateFields(sessionID, map[string]interface{}{
				"status":       model.StatusCompleted,
				"completed_at": time.Now(),
			}); err != nil {
				return err
			}
			result.SessionStatus = model.StatusCompleted
			result.Completed = true
		}

		result.Response, err = responses.FindByPair(sessionID, req.QuestionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, SessionEvent{
		Type:       EventAnswerSubmitted,
		SessionID:  sessionID,
		Status:     result.SessionStatus,
		QuestionID: req.QuestionID,
	})
	if result.Completed {
		s.transitioned(ctx, sessionID, model.StatusCompleted, EventSessionCompleted)
	}
	return &result, nil
}

// acquireEvaluation 同一作答同时只允许一次评估，并按天限制次数；redis 故障时放行
func (s *SessionService) acquireEvaluation(ctx context.Context, sessionID, questionID uint, settings evaluatorSettings) (func(), error) {
	release := func() {}
	if s.Guard == nil {
		return release, nil
	}

	lockKey := evaluationLockKey(sessionID, questionID)
	unlock, ok, err := s.Guard.TryLock(ctx, lockKey, settings.lockTTL)
	switch {
	case err != nil:
		logger.Log.Warn("Evaluation lock unavailable", zap.String("key", lockKey), zap.Error(err))
	case !ok:
		return release, util.ErrEvaluationInProgress
	default:
		release = unlock
	}

	if settings.maxAttempts > 0 {
		counterKey := fmt.Sprintf("eval_attempts:%d:%d", sessionID, questionID)
		n, err := s.Guard.IncrWithin(ctx, counterKey, evaluationAttemptWindow)
		if err != nil {
			logger.Log.Warn("Evaluation counter unavailable", zap.String("key", counterKey), zap.Error(err))
		} else if n > int64(settings.maxAttempts) {
			release()
			return func() {}, util.ErrTooManyEvaluations
		}
	}
	return release, nil
}

func evaluationLockKey(sessionID, questionID uint) string {
	return fmt.Sprintf("lock:evaluate:%d:%d", sessionID, questionID)
}

type evaluatorSettings struct {
	timeout     time.Duration
	lockTTL     time.Duration
	maxAttempts int
}

func (s *SessionService) currentEvaluator() (Evaluator, evaluatorSettings) {
	ev, cfg := s.Evaluators.Current()
	return ev, evaluatorSettings{
		timeout:     cfg.Timeout(),
		lockTTL:     cfg.LockTTL(),
		maxAttempts: cfg.MaxAttemptsPerDay,
	}
}

func evaluationFeedback(r *EvaluationResult) datatypes.JSONMap {
	feedback := datatypes.JSONMap{
		"feedback":  r.Feedback,
		"reasoning": r.Reasoning,
		"provider":  r.Provider,
	}
	if len(r.Breakdown) > 0 {
		feedback["breakdown"] = r.Breakdown
	}
	if len(r.Metadata) > 0 {
		feedback["metadata"] = r.Metadata
	}
	return feedback
}

// EvaluateAnswer 调用评估器为作答打分并重算会话总分。
// 评估器失败时返回占位结果和 ErrEvaluationUnavailable，作答保持未评分
func (s *SessionService) EvaluateAnswer(ctx context.Context, actor Actor, sessionID uint, req EvaluateAnswerRequest) (*EvaluationOutcome, error) {
	db := s.DB.WithContext(ctx)
	session, err := s.SessionRepo.WithTx(db).FindByID(sessionID)
	if err != nil {
		return nil, notFound(err, "session")
	}
	if !actor.canView(session) {
		return nil, util.ErrForbidden
	}
	response, err := s.ResponseRepo.WithTx(db).FindByPair(sessionID, req.QuestionID)
	if err != nil {
		return nil, notFound(err, "response")
	}
	if response.Scored() {
		return nil, fmt.Errorf("response already evaluated: %w", util.ErrInvalidState)
	}

	evaluator, settings := s.currentEvaluator()
	release, err := s.acquireEvaluation(ctx, sessionID, req.QuestionID, settings)
	if err != nil {
		return nil, err
	}
	defer release()

	question, err := s.QuestionRepo.WithTx(db).FindByIDUnscoped(req.QuestionID)
	if err != nil {
		return nil, notFound(err, "question")
	}
	view := NewQuestionView(question)

	result, evalErr := s.runEvaluator(ctx, evaluator, settings.timeout, view, response, session)
	if evalErr != nil {
		logger.Log.Warn("Evaluator failed, returning provisional evaluation",
			zap.Uint("session_id", sessionID),
			zap.Uint("question_id", req.QuestionID),
			zap.String("provider", evaluator.Name()),
			zap.Error(evalErr),
		)
		return &EvaluationOutcome{
			Response:      response,
			Evaluation:    ProvisionalEvaluation(view),
			SessionScore:  session.Score,
			SessionStatus: session.Status,
		}, fmt.Errorf("%w: %v", util.ErrEvaluationUnavailable, evalErr)
	}

	outcome := &EvaluationOutcome{Evaluation: result}
	completed := false
	err = db.Transaction(func(tx *gorm.DB) error {
		sessions := s.SessionRepo.WithTx(tx)
		responses := s.ResponseRepo.WithTx(tx)

		locked, err := sessions.LockByID(sessionID)
		if err != nil {
			return notFound(err, "session")
		}
		rows, err := responses.SaveEvaluation(response.ID, response.AnswerVersion, repository.EvaluationFields{
			Score:       result.Score,
			IsCorrect:   result.IsCorrect != nil && *result.IsCorrect,
			Feedback:    evaluationFeedback(result),
			Confidence:  util.Float64Ptr(result.Confidence),
			EvaluatedBy: result.Provider,
			EvaluatedAt: time.Now(),
		})
		if err != nil {
			return err
		}
		if rows == 0 {
			// 评估期间答案被改写或已被他人评分
			return fmt.Errorf("response changed during evaluation, retry: %w", util.ErrInvalidState)
		}

		scores, err := responses.ScoresBySession(sessionID)
		if err != nil {
			return err
		}
		total, err := sessions.CountQuestions(sessionID)
		if err != nil {
			return err
		}

		fields := map[string]interface{}{}
		aggregate := AggregateScore(scores)
		if aggregate != nil {
			fields["score"] = *aggregate
		}
		status := locked.Status
		if total > 0 && int64(len(scores)) == total && status != model.StatusCompleted && !status.Closed() {
			fields["status"] = model.StatusCompleted
			fields["completed_at"] = time.Now()
			status = model.StatusCompleted
			completed = true
		}
		if len(fields) > 0 {
			if err := sessions.UpdateFields(sessionID, fields); err != nil {
				return err
			}
		}

		outcome.SessionScore = aggregate
		outcome.SessionStatus = status
		outcome.Response, err = responses.FindByPair(sessionID, req.QuestionID)
		return err
	})
	if err != nil {
		monitoring.EvaluationsTotal.WithLabelValues(result.Provider, "rejected").Inc()
		return nil, err
	}

	monitoring.EvaluationsTotal.WithLabelValues(result.Provider, "success").Inc()
	s.publish(ctx, SessionEvent{
		Type:       EventAnswerEvaluated,
		SessionID:  sessionID,
		Status:     outcome.SessionStatus,
		QuestionID: req.QuestionID,
		Score:      outcome.SessionScore,
	})
	if completed {
		s.transitioned(ctx, sessionID, model.StatusCompleted, EventSessionCompleted)
	}
	return outcome, nil
}

func (s *SessionService) runEvaluator(ctx context.Context, evaluator Evaluator, timeout time.Duration, view QuestionView, response *model.InterviewResponse, session *model.InterviewSession) (*EvaluationResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "evaluator.evaluate")
	span.SetAttributes(
		attribute.String("evaluator.provider", evaluator.Name()),
		attribute.Int64("session.id", int64(session.ID)),
		attribute.Int64("question.id", int64(view.ID)),
	)
	defer span.End()

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := evaluator.Evaluate(evalCtx, view, json.RawMessage(response.UserAnswer), EvaluationContext{
		SessionID:      session.ID,
		SessionTitle:   session.Title,
		ProcessingTime: response.ProcessingTime,
	})
	monitoring.EvaluationDuration.WithLabelValues(evaluator.Name()).Observe(time.Since(start).Seconds())
	if err == nil && result == nil {
		err = errors.New("evaluator returned no result")
	}
	if err != nil {
		span.RecordError(err)
		monitoring.EvaluationsTotal.WithLabelValues(evaluator.Name(), "failed").Inc()
		return nil, err
	}
	return result, nil
}

// FollowUp 为多轮题生成追问，模型不可用时退回模板问题
func (s *SessionService) FollowUp(ctx context.Context, actor Actor, sessionID uint, req FollowUpRequest) (*FollowUpResult, error) {
	db := s.DB.WithContext(ctx)
	session, err := s.SessionRepo.WithTx(db).FindByID(sessionID)
	if err != nil {
		return nil, notFound(err, "session")
	}
	if !actor.canView(session) {
		return nil, util.ErrForbidden
	}
	if session.Status != model.StatusInProgress && session.Status != model.StatusCompleted {
		return nil, fmt.Errorf("session is %s: %w", session.Status, util.ErrInvalidState)
	}
	response, err := s.ResponseRepo.WithTx(db).FindByPair(sessionID, req.QuestionID)
	if err != nil {
		return nil, notFound(err, "response")
	}
	question, err := s.QuestionRepo.WithTx(db).FindByIDUnscoped(req.QuestionID)
	if err != nil {
		return nil, notFound(err, "question")
	}

	evaluator, settings := s.currentEvaluator()
	followCtx, cancel := context.WithTimeout(ctx, settings.timeout)
	defer cancel()

	answer := json.RawMessage(response.UserAnswer)
	text, err := evaluator.FollowUp(followCtx, NewQuestionView(question), answer)
	if err != nil || strings.TrimSpace(text) == "" {
		logger.Log.Warn("Follow-up generation failed, using template",
			zap.Uint("session_id", sessionID),
			zap.String("provider", evaluator.Name()),
			zap.Error(err),
		)
		return &FollowUpResult{
			QuestionID:       req.QuestionID,
			FollowUpQuestion: MockFollowUp(answer),
			Provider:         "template",
			IsMock:           true,
		}, nil
	}
	return &FollowUpResult{
		QuestionID:       req.QuestionID,
		FollowUpQuestion: text,
		Provider:         evaluator.Name(),
	}, nil
}

// closeSession 草稿或进行中的会话转为终止状态
func (s *SessionService) closeSession(ctx context.Context, id uint, to model.SessionStatus, allowed func(*model.InterviewSession) bool) (*model.InterviewSession, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := s.SessionRepo.WithTx(tx)
		session, err := sessions.LockByID(id)
		if err != nil {
			return notFound(err, "session")
		}
		if !allowed(session) {
			return util.ErrForbidden
		}
		if session.Status != model.StatusDraft && session.Status != model.StatusInProgress {
			return fmt.Errorf("session is %s: %w", session.Status, util.ErrInvalidState)
		}
		return sessions.UpdateFields(id, map[string]interface{}{"status": to})
	})
	if err != nil {
		return nil, err
	}

	event := EventSessionCancelled
	if to == model.StatusAbandoned {
		event = EventSessionAbandoned
	}
	s.transitioned(ctx, id, to, event)
	return s.SessionRepo.WithTx(s.DB.WithContext(ctx)).FindByID(id)
}

func (s *SessionService) Cancel(ctx context.Context, actor Actor, id uint) (*model.InterviewSession, error) {
	return s.closeSession(ctx, id, model.StatusCancelled, actor.canManage)
}

func (s *SessionService) Abandon(ctx context.Context, actor Actor, id uint) (*model.InterviewSession, error) {
	return s.closeSession(ctx, id, model.StatusAbandoned, actor.canAbandon)
}

// Delete 仅管理员，删除会话及其作答
func (s *SessionService) Delete(ctx context.Context, actor Actor, id uint) error {
	if !actor.IsSuperuser {
		return util.ErrForbidden
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := s.SessionRepo.WithTx(tx)
		session, err := sessions.LockByID(id)
		if err != nil {
			return notFound(err, "session")
		}
		if err := sessions.Delete(session); err != nil {
			return err
		}
		logger.Log.Info("Interview session deleted", zap.Uint("session_id", id))
		return nil
	})
}
