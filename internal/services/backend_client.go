package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anassewp/telegram-backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend failure classes. A *BackendError unwraps to one of them.
var (
	ErrUnauthorized       = errors.New("session is not authorized for this operation")
	ErrTargetNotFound     = errors.New("target not found")
	ErrBackendUnavailable = errors.New("execution backend unavailable")
	ErrTimeout            = errors.New("execution backend timed out")
	ErrRemoteRejected     = errors.New("execution backend rejected the request")
)

type BackendError struct {
	Op         string
	Kind       error
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend %s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Kind }

// Retryable reports whether the caller may retry the same call later.
func Retryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrTimeout)
}

// classifyCode maps the backend's machine-readable error code.
func classifyCode(code string) error {
	switch strings.ToLower(code) {
	case "unauthorized", "forbidden":
		return ErrUnauthorized
	case "not_found":
		return ErrTargetNotFound
	case "timeout":
		return ErrTimeout
	case "unavailable":
		return ErrBackendUnavailable
	}
	return ErrRemoteRejected
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrTargetNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status >= 500:
		return ErrBackendUnavailable
	}
	return ErrRemoteRejected
}

func classifyTransport(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return ErrTimeout
	}
	return ErrBackendUnavailable
}

// SessionCredentials is the bundle the backend needs to act as a session.
type SessionCredentials struct {
	SessionID     uuid.UUID `json:"session_id"`
	Phone         string    `json:"phone"`
	SessionString string    `json:"session_string"`
	APIID         int       `json:"api_id"`
	APIHash       string    `json:"api_hash"`
}

func CredentialsOf(s models.Session) SessionCredentials {
	return SessionCredentials{
		SessionID:     s.ID,
		Phone:         s.Phone,
		SessionString: s.SessionString,
		APIID:         s.APIID,
		APIHash:       s.APIHash,
	}
}

type CampaignNotification struct {
	CampaignID   uuid.UUID   `json:"campaign_id"`
	UserID       uuid.UUID   `json:"user_id"`
	SessionIDs   []uuid.UUID `json:"session_ids"`
	TotalTargets int         `json:"total_targets"`
	Reason       string      `json:"reason,omitempty"`
}

type SendMessageRequest struct {
	Session    SessionCredentials `json:"session"`
	CampaignID uuid.UUID          `json:"campaign_id"`
	GroupID    string             `json:"group_id"`
	Message    string             `json:"message"`
	ScheduleAt *time.Time         `json:"schedule_at,omitempty"`
}

type SendMessageResult struct {
	MessageID string `json:"message_id"`
}

type TransferMemberRequest struct {
	Session       SessionCredentials `json:"session"`
	SourceGroupID string             `json:"source_group_id"`
	TargetGroupID string             `json:"target_group_id"`
	MemberID      string             `json:"member_id"`
}

type BatchItem struct {
	MemberID     string  `json:"member_id"`
	DelaySeconds float64 `json:"delay_seconds"`
}

type BatchAssignment struct {
	Session SessionCredentials `json:"session"`
	Items   []BatchItem        `json:"items"`
}

type TransferBatchRequest struct {
	BatchID       uuid.UUID         `json:"batch_id"`
	SourceGroupID string            `json:"source_group_id"`
	TargetGroupID string            `json:"target_group_id"`
	Strategy      string            `json:"strategy"`
	Assignments   []BatchAssignment `json:"assignments"`
}

type BatchItemResult struct {
	SessionID uuid.UUID `json:"session_id"`
	MemberID  string    `json:"member_id"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"`
}

type TransferBatchResult struct {
	TotalTransferred int               `json:"total_transferred"`
	TotalFailed      int               `json:"total_failed"`
	Results          []BatchItemResult `json:"results"`
}

type GroupInfo struct {
	GroupID      string `json:"group_id"`
	Title        string `json:"title"`
	Username     string `json:"username,omitempty"`
	MembersCount int    `json:"members_count"`
}

// envelope is the backend's response wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// BackendClient calls the service that holds authenticated third-party
// sessions and performs the actual sends, joins and transfers.
type BackendClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewBackendClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *BackendClient {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// NotifyCampaign tells the backend about a campaign state change
// (start, pause, resume, cancel).
func (c *BackendClient) NotifyCampaign(ctx context.Context, action string, n CampaignNotification) error {
	path := fmt.Sprintf("/internal/campaigns/%s/%s", n.CampaignID, action)
	return c.do(ctx, "campaign "+action, http.MethodPost, path, n, nil)
}

func (c *BackendClient) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	var result SendMessageResult
	if err := c.do(ctx, "send message", http.MethodPost, "/internal/messages/send", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *BackendClient) TransferMember(ctx context.Context, req TransferMemberRequest) error {
	return c.do(ctx, "transfer member", http.MethodPost, "/internal/members/transfer", req, nil)
}

func (c *BackendClient) TransferBatch(ctx context.Context, req TransferBatchRequest) (*TransferBatchResult, error) {
	var result TransferBatchResult
	if err := c.do(ctx, "transfer batch", http.MethodPost, "/internal/members/transfer-batch", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *BackendClient) JoinGroup(ctx context.Context, session SessionCredentials, groupRef string) (*GroupInfo, error) {
	body := map[string]any{"session": session, "group": groupRef}
	var info GroupInfo
	if err := c.do(ctx, "join group", http.MethodPost, "/internal/groups/join", body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *BackendClient) SearchGroups(ctx context.Context, session SessionCredentials, query string, limit int) ([]GroupInfo, error) {
	body := map[string]any{"session": session, "query": query, "limit": limit}
	groups := []GroupInfo{}
	if err := c.do(ctx, "search groups", http.MethodPost, "/internal/groups/search", body, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *BackendClient) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Service-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := classifyTransport(err)
		c.log.Warn("backend call failed", zap.String("op", op), zap.Error(err))
		return &BackendError{Op: op, Kind: kind, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &BackendError{Op: op, Kind: classifyTransport(err), StatusCode: resp.StatusCode, Message: err.Error()}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		kind := classifyStatus(resp.StatusCode)
		if decodeErr == nil && env.Error != "" {
			msg = env.Error
			if env.Code != "" && resp.StatusCode < 500 {
				kind = classifyCode(env.Code)
			}
		}
		return &BackendError{Op: op, Kind: kind, StatusCode: resp.StatusCode, Message: msg}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if decodeErr != nil {
		return &BackendError{Op: op, Kind: ErrRemoteRejected, StatusCode: resp.StatusCode, Message: "malformed response: " + decodeErr.Error()}
	}
	if env.Success != nil && !*env.Success {
		return &BackendError{Op: op, Kind: classifyCode(env.Code), StatusCode: resp.StatusCode, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &BackendError{Op: op, Kind: ErrRemoteRejected, StatusCode: resp.StatusCode, Message: "malformed data: " + err.Error()}
		}
	}
	return nil
}
