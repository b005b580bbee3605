package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/model"
)

const (
	fcmScope           = "https://www.googleapis.com/auth/firebase.messaging"
	fcmDefaultEndpoint = "https://fcm.googleapis.com"
)

type FCMConfig struct {
	ProjectID       string
	CredentialsFile string
	Endpoint        string        // defaults to fcm.googleapis.com
	Timeout         time.Duration // HTTP client timeout, default 30s
}

// FCMSender pushes through the Firebase Cloud Messaging HTTP v1 API using a
// service-account token source.
type FCMSender struct {
	client    *http.Client
	projectID string
	endpoint  string
	logger    *zap.Logger
}

// NewFCMSender loads service-account credentials from cfg.CredentialsFile.
func NewFCMSender(ctx context.Context, cfg FCMConfig, logger *zap.Logger) (*FCMSender, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, errs.Wrap(err, "read fcm credentials")
	}
	creds, err := google.CredentialsFromJSON(ctx, data, fcmScope)
	if err != nil {
		return nil, errs.Wrap(err, "parse fcm credentials")
	}
	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		return nil, errs.New("fcm project id is not set")
	}
	cfg.ProjectID = projectID
	return NewFCMSenderWithTokenSource(cfg, creds.TokenSource, logger), nil
}

// NewFCMSenderWithTokenSource builds a sender around an existing token source.
func NewFCMSenderWithTokenSource(cfg FCMConfig, ts oauth2.TokenSource, logger *zap.Logger) *FCMSender {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fcmDefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := oauth2.NewClient(context.Background(), ts)
	client.Timeout = timeout

	return &FCMSender{
		client:    client,
		projectID: cfg.ProjectID,
		endpoint:  strings.TrimRight(endpoint, "/"),
		logger:    logger,
	}
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      fcmAndroid        `json:"android"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority string `json:"priority"`
}

type fcmErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
		Details []struct {
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

func (s *FCMSender) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return errs.ErrNoDeviceToken
	}

	body, err := json.Marshal(fcmRequest{Message: fcmMessage{
		Token:        msg.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
		Android:      fcmAndroid{Priority: "high"},
	}})
	if err != nil {
		return errs.Wrap(err, "marshal fcm message")
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", s.endpoint, s.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(err, "failed to create fcm request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errs.Wrap(err, "fcm request failed")
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.logger.Debug("push sent via FCM",
			zap.String("type", msg.Data["type"]),
			zap.Int("status", resp.StatusCode),
		)
		return nil
	}

	if isUnregistered(resp.StatusCode, respBody) {
		return errs.Wrapf(errs.ErrInvalidDeviceToken, "fcm status %d", resp.StatusCode)
	}
	return errs.Newf("fcm returned status %d: %s", resp.StatusCode, truncate(string(respBody), 256))
}

func isUnregistered(status int, body []byte) bool {
	if status == http.StatusNotFound {
		return true
	}
	var eb fcmErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return false
	}
	for _, d := range eb.Error.Details {
		if d.ErrorCode == "UNREGISTERED" {
			return true
		}
	}
	return eb.Error.Status == "NOT_FOUND"
}

func (s *FCMSender) SupportsChannel(channel string) bool {
	return channel == model.ChannelFCM
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
