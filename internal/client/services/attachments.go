package services

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/agrolink/agrolink/internal/client/models"
	"github.com/agrolink/agrolink/internal/common"
	"github.com/agrolink/agrolink/internal/cryptox"
	"github.com/agrolink/agrolink/internal/filex"
	"github.com/agrolink/agrolink/internal/netx"
	"github.com/agrolink/agrolink/internal/rpc"
	"github.com/google/uuid"
)

const attachmentMimeFallback = "application/octet-stream"

// UploadAttachment encrypts the file at path with the conversation key and
// uploads it. When the server reports object storage as disabled the
// encrypted file is written to the local attachments directory instead and
// the returned attachment carries a file:// URL.
func (s *MessagingService) UploadAttachment(ctx context.Context, conversationID, path string) (*models.Attachment, error) {
	sess, err := s.currentSession()
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", path, common.ErrorValidation)
	}
	if fi.Size() > common.MaxAttachmentSize {
		return nil, common.ErrAttachmentTooLarge
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := s.conversationKey(ctx, sess, conversationID)
	if err != nil {
		return nil, err
	}
	blob, err := cryptox.EncryptBytes(key, data)
	if err != nil {
		return nil, fmt.Errorf("encrypt attachment: %w", err)
	}

	name := filepath.Base(path)
	mimeType := mimeTypeOf(name)

	resp, err := s.client.RequestAttachmentUpload(ctx, &rpc.RequestAttachmentUploadRequest{
		ConversationID: conversationID,
		FileName:       name,
		MimeType:       mimeType,
		Size:           fi.Size(),
	})
	if err != nil {
		return nil, err
	}

	att := &models.Attachment{FileName: name, MimeType: mimeType, Size: fi.Size()}
	if resp.StorageEnabled {
		if err := netx.UploadToPresignedURL(ctx, s.httpClient, resp.URL, blob, ""); err != nil {
			return nil, err
		}
		att.Key = resp.Key
		return att, nil
	}

	local, err := s.storeLocally(conversationID, name, blob)
	if err != nil {
		return nil, err
	}
	att.Key = conversationID + "/" + filepath.Base(local)
	att.URL = filex.FileURL(local)
	s.logger.Info(ctx, "object storage disabled, attachment kept locally", "conversation_id", conversationID, "path", local)
	return att, nil
}

func (s *MessagingService) storeLocally(conversationID, name string, blob []byte) (string, error) {
	dir, err := filex.EnsureDir(filepath.Join(s.attachmentDir, filepath.Base(conversationID)))
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, uuid.NewString()+"-"+name+".enc")
	if err := filex.WriteFileAtomic(path, blob); err != nil {
		return "", err
	}
	return path, nil
}

// SendAttachment sends a reference to an uploaded attachment as an
// encrypted message whose mime type is the file's.
func (s *MessagingService) SendAttachment(ctx context.Context, conversationID, senderID string, att *models.Attachment) (*models.Message, error) {
	if att == nil || att.Key == "" {
		return nil, common.ErrorValidation
	}
	body, err := json.Marshal(att)
	if err != nil {
		return nil, err
	}
	mimeType := att.MimeType
	if mimeType == "" || mimeType == defaultMimeType {
		mimeType = attachmentMimeFallback
	}
	return s.SendMessage(ctx, conversationID, senderID, string(body), mimeType)
}

// AttachmentFromMessage parses the attachment reference carried by a
// message. It reports false for text messages and undecryptable bodies.
func AttachmentFromMessage(m *models.Message) (*models.Attachment, bool) {
	if m == nil || m.DecryptFailed || m.MimeType == "" || m.MimeType == defaultMimeType {
		return nil, false
	}
	var att models.Attachment
	if err := json.Unmarshal([]byte(m.Text), &att); err != nil || att.Key == "" {
		return nil, false
	}
	return &att, true
}

// OpenAttachment downloads (or reads locally) and decrypts an attachment.
func (s *MessagingService) OpenAttachment(ctx context.Context, conversationID string, att *models.Attachment) ([]byte, error) {
	sess, err := s.currentSession()
	if err != nil {
		return nil, err
	}
	if att == nil {
		return nil, common.ErrorValidation
	}

	var blob []byte
	if att.Local() {
		path, err := filex.PathFromFileURL(att.URL)
		if err != nil {
			return nil, err
		}
		if blob, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	} else {
		url, err := s.client.GetAttachmentURL(ctx, conversationID, att.Key)
		if err != nil {
			return nil, err
		}
		if blob, err = netx.Download(ctx, s.httpClient, url); err != nil {
			return nil, err
		}
	}

	key, err := s.conversationKey(ctx, sess, conversationID)
	if err != nil {
		return nil, err
	}
	data, err := cryptox.DecryptBytes(key, blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt attachment: %w", err)
	}
	return data, nil
}

func mimeTypeOf(name string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if t == "" {
		return attachmentMimeFallback
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}
