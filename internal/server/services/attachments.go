package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/server/models"
	"github.com/agrolink/agrolink/internal/server/storage"
)

// AttachmentService hands out presigned object-storage URLs for encrypted
// attachments. A nil presigner means storage is disabled and clients keep
// attachments locally.
type AttachmentService struct {
	messaging *MessagingService
	presigner storage.Presigner
}

func NewAttachmentService(messaging *MessagingService, presigner storage.Presigner) *AttachmentService {
	return &AttachmentService{messaging: messaging, presigner: presigner}
}

// RequestUpload validates the upload and returns a presigned PUT URL.
func (s *AttachmentService) RequestUpload(ctx context.Context, userID, conversationID, fileName, mimeType string, size int64) (*models.AttachmentUpload, error) {
	if size < 0 || strings.TrimSpace(fileName) == "" {
		return nil, common.ErrorValidation
	}
	if size > common.MaxAttachmentSize {
		return nil, common.ErrAttachmentTooLarge
	}
	if _, err := s.messaging.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if s.presigner == nil {
		return &models.AttachmentUpload{StorageEnabled: false}, nil
	}

	key := storage.AttachmentKey(conversationID, fileName)
	url, err := s.presigner.PresignPut(ctx, key, mimeType)
	if err != nil {
		return nil, fmt.Errorf("error presigning upload: %w", err)
	}
	return &models.AttachmentUpload{StorageEnabled: true, Key: key, URL: url}, nil
}

// GetDownloadURL presigns a GET for an attachment stored under the
// conversation's prefix.
func (s *AttachmentService) GetDownloadURL(ctx context.Context, userID, conversationID, key string) (string, error) {
	if _, err := s.messaging.requireParticipant(ctx, conversationID, userID); err != nil {
		return "", err
	}
	if !strings.HasPrefix(key, storage.ConversationPrefix(conversationID)) || strings.Contains(key, "..") {
		return "", common.ErrorValidation
	}
	if s.presigner == nil {
		return "", common.ErrStorageDisabled
	}
	url, err := s.presigner.PresignGet(ctx, key)
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}
	return url, nil
}
