package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/internal/util"
	"mock_interview_backend/pkg/logger"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	pdfPreviewPages  = 5
	pdfPreviewLength = 20000
)

// AnswerAttachment 上传后的答题附件，可作为答案 JSON 的一部分提交
type AnswerAttachment struct {
	Key           string          `json:"key"`
	URL           string          `json:"url"`
	Filename      string          `json:"filename"`
	ContentType   string          `json:"contentType"`
	Size          int64           `json:"size"`
	Media         *util.MediaInfo `json:"media,omitempty"`
	ExtractedText string          `json:"extractedText,omitempty"`
}

type UploadService struct {
	Storage     *StorageService
	SessionRepo *repository.SessionRepository
	MaxSize     int64
}

func NewUploadService(storage *StorageService, sessionRepo *repository.SessionRepository, maxSizeMB int64) *UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	return &UploadService{
		Storage:     storage,
		SessionRepo: sessionRepo,
		MaxSize:     maxSizeMB << 20,
	}
}

// checkSession 只有进行中会话的候选人可以上传
func (s *UploadService) checkSession(actor Actor, sessionID uint) error {
	session, err := s.SessionRepo.FindByID(sessionID)
	if err != nil {
		return notFound(err, "session")
	}
	if !actor.canSubmit(session) {
		return util.ErrForbidden
	}
	if session.Status != model.StatusInProgress {
		return fmt.Errorf("session is %s: %w", session.Status, util.ErrInvalidState)
	}
	return nil
}

func (s *UploadService) UploadAnswer(ctx context.Context, actor Actor, sessionID uint, fh *multipart.FileHeader) (*AnswerAttachment, error) {
	if fh.Size > s.MaxSize {
		return nil, fmt.Errorf("file exceeds %d MB: %w", s.MaxSize>>20, util.ErrInvalidArgument)
	}
	if err := s.checkSession(actor, sessionID); err != nil {
		return nil, err
	}

	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	mimeType, err := util.ValidateMimeType(src, util.AllowedAnswerMimeTypes)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, util.ErrInvalidArgument)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	tmp, err := os.CreateTemp("", "answer-*"+ext)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	attachment := &AnswerAttachment{
		Filename:    filepath.Base(fh.Filename),
		ContentType: mimeType,
		Size:        fh.Size,
	}

	switch {
	case util.IsMedia(mimeType):
		info, err := util.GetMediaInfo(tmp.Name())
		if err != nil {
			logger.Log.Warn("Media probe failed", zap.String("filename", fh.Filename), zap.Error(err))
		} else {
			attachment.Media = info
		}
	case util.IsPDF(mimeType):
		text, err := util.ExtractPDFText(tmp.Name(), pdfPreviewPages)
		if err != nil {
			logger.Log.Warn("PDF text extraction failed", zap.String("filename", fh.Filename), zap.Error(err))
		} else {
			if len(text) > pdfPreviewLength {
				text = text[:pdfPreviewLength]
			}
			attachment.ExtractedText = text
		}
	}

	attachment.Key = fmt.Sprintf("answers/%d/%s%s", sessionID, model.GenerateUUID(), ext)
	attachment.URL, err = s.Storage.UploadFile(ctx, attachment.Key, tmp.Name(), mimeType)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Answer attachment uploaded",
		zap.Uint("session_id", sessionID),
		zap.String("key", attachment.Key),
		zap.String("content_type", mimeType),
	)
	return attachment, nil
}

// DeleteAnswer key 形如 answers/<sessionID>/<uuid>.<ext>
func (s *UploadService) DeleteAnswer(ctx context.Context, actor Actor, key string) error {
	var sessionID uint
	var name string
	if _, err := fmt.Sscanf(key, "answers/%d/%s", &sessionID, &name); err != nil || name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid attachment key: %w", util.ErrInvalidArgument)
	}
	if err := s.checkSession(actor, sessionID); err != nil {
		return err
	}
	return s.Storage.Delete(ctx, key)
}
