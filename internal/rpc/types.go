package rpc

import "time"

// Event kinds carried by the Subscribe stream. EventSubscribed is always the
// first event and is sent once the server is registered for the
// conversation's events.
const (
	EventSubscribed = "subscribed"
	EventMessage    = "message"
	EventTyping     = "typing"
	EventReceipt    = "receipt"
)

type Empty struct{}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type RegisterUserRequest struct {
	Username          string `json:"username"`
	Salt              []byte `json:"salt"`
	Verifier          []byte `json:"verifier"`
	IdentityPublicKey []byte `json:"identity_public_key"`
	SealedIdentityKey []byte `json:"sealed_identity_key"`
	IdentityKeyNonce  []byte `json:"identity_key_nonce"`
}

type RegisterUserResponse struct {
	UserID string `json:"user_id"`
}

type GetSaltRequest struct {
	Username string `json:"username"`
}

type GetSaltResponse struct {
	Salt []byte `json:"salt"`
}

type LoginRequest struct {
	Username          string `json:"username"`
	VerifierCandidate []byte `json:"verifier_candidate"`
}

type LoginResponse struct {
	AccessToken       string `json:"access_token"`
	UserID            string `json:"user_id"`
	IdentityPublicKey []byte `json:"identity_public_key"`
	SealedIdentityKey []byte `json:"sealed_identity_key"`
	IdentityKeyNonce  []byte `json:"identity_key_nonce"`
}

type GetPublicKeysRequest struct {
	UserIDs []string `json:"user_ids"`
}

type GetPublicKeysResponse struct {
	Keys map[string][]byte `json:"keys"`
}

// WrappedKey is a conversation key wrapped for a single participant.
type WrappedKey struct {
	UserID          string `json:"user_id"`
	EphemeralPublic []byte `json:"ephemeral_public"`
	Nonce           []byte `json:"nonce"`
	Ciphertext      []byte `json:"ciphertext"`
}

type Conversation struct {
	ID             string     `json:"id"`
	ParticipantIDs []string   `json:"participant_ids"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	LastMessageID  string     `json:"last_message_id,omitempty"`
	UnreadCount    int64      `json:"unread_count"`
}

type EnsureConversationRequest struct {
	OtherUserID string        `json:"other_user_id"`
	Keys        []*WrappedKey `json:"keys"`
}

type EnsureConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
	Created      bool          `json:"created"`
	Key          *WrappedKey   `json:"key"`
}

type GetConversationKeyRequest struct {
	ConversationID string `json:"conversation_id"`
}

type GetConversationKeyResponse struct {
	Key *WrappedKey `json:"key"`
}

type AddParticipantRequest struct {
	ConversationID string      `json:"conversation_id"`
	Key            *WrappedKey `json:"key"`
}

type ListConversationsRequest struct{}

type ListConversationsResponse struct {
	Conversations []*Conversation `json:"conversations"`
}

type GetConversationsParticipantsRequest struct {
	ConversationIDs []string `json:"conversation_ids"`
}

type GetConversationsParticipantsResponse struct {
	Participants map[string][]string `json:"participants"`
}

type GetUnreadCountsRequest struct{}

type GetUnreadCountsResponse struct {
	Counts map[string]int64 `json:"counts"`
}

type Receipt struct {
	MessageID   string     `json:"message_id"`
	UserID      string     `json:"user_id"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Ciphertext     string     `json:"ciphertext"`
	IV             string     `json:"iv"`
	MimeType       string     `json:"mime_type"`
	CreatedAt      time.Time  `json:"created_at"`
	Seq            int64      `json:"seq"`
	Receipts       []*Receipt `json:"receipts,omitempty"`
}

type ListMessagesRequest struct {
	ConversationID string `json:"conversation_id"`
}

type ListMessagesResponse struct {
	Messages []*Message `json:"messages"`
}

type SendMessageRequest struct {
	Message *Message `json:"message"`
}

type SendMessageResponse struct {
	Message *Message `json:"message"`
}

type MarkReceiptsRequest struct {
	MessageIDs []string `json:"message_ids"`
}

type MarkReceiptsResponse struct {
	Receipts []*Receipt `json:"receipts"`
}

type HideMessageRequest struct {
	MessageID string `json:"message_id"`
}

type ArchiveConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type SendTypingRequest struct {
	ConversationID string `json:"conversation_id"`
}

type RequestAttachmentUploadRequest struct {
	ConversationID string `json:"conversation_id"`
	FileName       string `json:"file_name"`
	MimeType       string `json:"mime_type"`
	Size           int64  `json:"size"`
}

type RequestAttachmentUploadResponse struct {
	StorageEnabled bool   `json:"storage_enabled"`
	Key            string `json:"key"`
	URL            string `json:"url"`
}

type GetAttachmentURLRequest struct {
	ConversationID string `json:"conversation_id"`
	Key            string `json:"key"`
}

type GetAttachmentURLResponse struct {
	URL string `json:"url"`
}

type SubscribeRequest struct {
	ConversationID string `json:"conversation_id"`
}

// Event is one realtime notification for a conversation. Exactly one of
// Message or Receipt is set for the matching kinds; typing events carry only
// UserID.
type Event struct {
	Kind           string    `json:"kind"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	Receipt        *Receipt  `json:"receipt,omitempty"`
	At             time.Time `json:"at"`
}
