package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
)

// Feishu error codes that mean the app lacks a scope
var permissionCodes = map[int]bool{
	99991672: true, // app scope not granted
	99991679: true, // user scope not granted
	99991663: true, // tenant token lacks access
}

var remediationURL = regexp.MustCompile(`https://[^\s"'<>，。）)]+`)

// maxHistoryPage is the page size limit of im/v1/messages
const maxHistoryPage = 50

// Options configures a Client
type Options struct {
	AppID       string
	AppSecret   string
	Domain      string // feishu or lark
	DownloadDir string
	Logger      *slog.Logger
}

// BotInfo is the bot's own identity
type BotInfo struct {
	OpenID  string
	AppName string
}

// Client is the Feishu API client
type Client struct {
	appID       string
	appSecret   string
	baseURL     string
	larkCli     *lark.Client
	downloadDir string
	logger      *slog.Logger
}

// NewClient creates a new Feishu client
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := BaseURL(opts.Domain)
	downloadDir := opts.DownloadDir
	if downloadDir == "" {
		downloadDir = filepath.Join(os.TempDir(), "feishu-media")
	}
	return &Client{
		appID:       opts.AppID,
		appSecret:   opts.AppSecret,
		baseURL:     baseURL,
		larkCli:     lark.NewClient(opts.AppID, opts.AppSecret, lark.WithOpenBaseUrl(baseURL)),
		downloadDir: downloadDir,
		logger:      logger.With("component", "feishu"),
	}
}

// BaseURL maps a domain name to the open platform base URL
func BaseURL(domain string) string {
	if strings.EqualFold(strings.TrimSpace(domain), "lark") {
		return lark.LarkBaseUrl
	}
	return lark.FeishuBaseUrl
}

// AppID returns the app id the client authenticates as
func (c *Client) AppID() string { return c.appID }

// AppSecret returns the app secret, needed by the WebSocket client
func (c *Client) AppSecret() string { return c.appSecret }

// BaseURLString returns the configured open platform base URL
func (c *Client) BaseURLString() string { return c.baseURL }

// FetchBotInfo fetches the bot's own open_id and name
func (c *Client) FetchBotInfo(ctx context.Context) (BotInfo, error) {
	resp, err := c.larkCli.Get(ctx, "/open-apis/bot/v3/info", nil, larkcore.AccessTokenTypeTenant)
	if err != nil {
		return BotInfo{}, fmt.Errorf("get bot info: %w", err)
	}
	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.Unmarshal(resp.RawBody, &body); err != nil {
		return BotInfo{}, fmt.Errorf("decode bot info: %w", err)
	}
	if body.Code != 0 {
		return BotInfo{}, fmt.Errorf("bot info error: %s (code: %d)", body.Msg, body.Code)
	}
	if body.Bot.OpenID == "" {
		return BotInfo{}, fmt.Errorf("bot info: empty open_id")
	}
	c.logger.Info("bot identity discovered", "open_id", body.Bot.OpenID, "name", body.Bot.AppName)
	return BotInfo{OpenID: body.Bot.OpenID, AppName: body.Bot.AppName}, nil
}

// ListRecent retrieves recent messages of a chat or thread, newest first.
// ByCreateTimeDesc is required: the API defaults to oldest first.
func (c *Client) ListRecent(ctx context.Context, containerID, containerKind string, limit int) ([]domain.RemoteMessage, error) {
	if limit > maxHistoryPage {
		limit = maxHistoryPage
	}
	if limit <= 0 {
		limit = 20
	}

	req := larkim.NewListMessageReqBuilder().
		ContainerIdType(containerKind).
		ContainerId(containerID).
		SortType("ByCreateTimeDesc").
		PageSize(limit).
		Build()

	resp, err := c.larkCli.Im.Message.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if !resp.Success() {
		return nil, codeError("list messages", resp.Code, resp.Msg)
	}
	if resp.Data == nil {
		return nil, nil
	}

	messages := make([]domain.RemoteMessage, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		if item == nil || item.MessageId == nil {
			continue
		}
		if item.Deleted != nil && *item.Deleted {
			continue
		}
		msg := domain.RemoteMessage{
			MessageID:   *item.MessageId,
			ContentKind: domain.ContentKind(str(item.MsgType)),
			CreateTime:  parseMillis(str(item.CreateTime)),
		}
		if item.Body != nil {
			msg.RawContent = str(item.Body.Content)
		}
		if item.Sender != nil {
			msg.SenderID = str(item.Sender.Id)
			msg.SenderType = str(item.Sender.SenderType)
		}
		for _, m := range item.Mentions {
			if m == nil {
				continue
			}
			msg.Mentions = append(msg.Mentions, domain.Mention{
				Key:  str(m.Key),
				ID:   str(m.Id),
				Name: str(m.Name),
			})
		}
		messages = append(messages, msg)
	}

	c.logger.Debug("history fetched", "container", containerID, "kind", containerKind, "count", len(messages))
	return messages, nil
}

// GetUserName looks up a user's display name by open_id.
// Missing scopes are reported as *domain.PermissionError.
func (c *Client) GetUserName(ctx context.Context, openID string) (string, error) {
	req := larkcontact.NewGetUserReqBuilder().
		UserIdType(larkcontact.UserIdTypeOpenId).
		UserId(openID).
		Build()

	resp, err := c.larkCli.Contact.User.Get(ctx, req)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if !resp.Success() {
		if permErr := AsPermissionError(resp.Code, resp.Msg); permErr != nil {
			return "", permErr
		}
		return "", codeError("get user", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.User == nil {
		return "", fmt.Errorf("get user: empty user")
	}
	name := strings.TrimSpace(str(resp.Data.User.Name))
	if name == "" {
		name = strings.TrimSpace(str(resp.Data.User.Nickname))
	}
	if name == "" {
		return "", fmt.Errorf("get user: empty name")
	}
	return name, nil
}

// AsPermissionError classifies an API error code; nil means it is not a scope problem
func AsPermissionError(code int, msg string) *domain.PermissionError {
	if !permissionCodes[code] {
		return nil
	}
	return &domain.PermissionError{
		Code:    code,
		Message: msg,
		URL:     remediationURL.FindString(msg),
	}
}

// AddReaction adds an emoji reaction to a message and returns its id
func (c *Client) AddReaction(ctx context.Context, messageID, emojiType string) (string, error) {
	req := larkim.NewCreateMessageReactionReqBuilder().
		MessageId(messageID).
		Body(larkim.NewCreateMessageReactionReqBodyBuilder().
			ReactionType(larkim.NewEmojiBuilder().EmojiType(emojiType).Build()).
			Build()).
		Build()

	resp, err := c.larkCli.Im.MessageReaction.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("add reaction: %w", err)
	}
	if !resp.Success() {
		return "", codeError("add reaction", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.ReactionId == nil || *resp.Data.ReactionId == "" {
		return "", fmt.Errorf("add reaction: empty reaction id")
	}
	return *resp.Data.ReactionId, nil
}

// RemoveReaction removes an emoji reaction from a message
func (c *Client) RemoveReaction(ctx context.Context, messageID, reactionID string) error {
	req := larkim.NewDeleteMessageReactionReqBuilder().
		MessageId(messageID).
		ReactionId(reactionID).
		Build()

	resp, err := c.larkCli.Im.MessageReaction.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	if !resp.Success() {
		return codeError("remove reaction", resp.Code, resp.Msg)
	}
	return nil
}

// SendText sends a text message to a chat (oc_) or a user (ou_/on_)
func (c *Client) SendText(ctx context.Context, receiveID, text string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(ReceiveIDType(receiveID)).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(larkim.MsgTypeText).
			Content(textContent(text)).
			Uuid(uuid.NewString()).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if !resp.Success() {
		return codeError("send message", resp.Code, resp.Msg)
	}
	c.logger.Debug("message sent", "receive_id", receiveID)
	return nil
}

// ReplyText replies to a message, optionally inside its thread
func (c *Client) ReplyText(ctx context.Context, messageID, text string, inThread bool) error {
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			Content(textContent(text)).
			MsgType(larkim.MsgTypeText).
			ReplyInThread(inThread).
			Uuid(uuid.NewString()).
			Build()).
		Build()

	resp, err := c.larkCli.Im.V1.Message.Reply(ctx, req)
	if err != nil {
		return fmt.Errorf("reply message: %w", err)
	}
	if !resp.Success() {
		return codeError("reply message", resp.Code, resp.Msg)
	}
	c.logger.Debug("reply sent", "message_id", messageID, "in_thread", inThread)
	return nil
}

// DownloadResource downloads an image or file attached to a message and saves it locally
func (c *Client) DownloadResource(ctx context.Context, messageID, key, resourceType string) (string, error) {
	if err := os.MkdirAll(c.downloadDir, 0o700); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(messageID).
		FileKey(key).
		Type(resourceType).
		Build()

	resp, err := c.larkCli.Im.MessageResource.Get(ctx, req)
	if err != nil {
		return "", fmt.Errorf("get resource: %w", err)
	}
	if !resp.Success() {
		return "", codeError("get resource", resp.Code, resp.Msg)
	}
	if resp.File == nil {
		return "", fmt.Errorf("get resource: empty body")
	}

	filePath := filepath.Join(c.downloadDir, localName(key, resourceType, resp.FileName))
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.File); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	c.logger.Debug("resource downloaded", "message_id", messageID, "type", resourceType, "path", filePath)
	return filePath, nil
}

// ReceiveIDType picks receive_id_type from the id prefix
func ReceiveIDType(id string) string {
	switch {
	case strings.HasPrefix(id, "ou_"):
		return larkim.ReceiveIdTypeOpenId
	case strings.HasPrefix(id, "on_"):
		return larkim.ReceiveIdTypeUnionId
	default:
		return larkim.ReceiveIdTypeChatId
	}
}

func localName(key, resourceType, remoteName string) string {
	ext := ".png"
	if resourceType != "image" {
		ext = ".bin"
		if remoteName != "" {
			if e := filepath.Ext(filepath.Base(remoteName)); e != "" && e != "." {
				ext = e
			}
		}
	}
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, key)
	return safe + ext
}

func textContent(text string) string {
	b, _ := json.Marshal(map[string]string{"text": text})
	return string(b)
}

func codeError(op string, code int, msg string) error {
	return fmt.Errorf("%s error: %s (code: %d)", op, msg, code)
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
