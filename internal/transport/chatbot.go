package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/model"
	"github.com/disintegration/imaging"
)

// ChatBot delivers notifications and media through a Telegram compatible bot
// API.
type ChatBot struct {
	cfg     config.ChatBotDestinationConfig
	client  HTTPDoer
	log     logger.ILogger
	botName string
	mu      sync.RWMutex
}

// botResponse is the envelope of every bot API reply.
type botResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type botUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// ChatBotOption configures a ChatBot.
type ChatBotOption func(*ChatBot)

// WithHTTPClient sets a custom HTTP client for testing.
func WithHTTPClient(client HTTPDoer) ChatBotOption {
	return func(c *ChatBot) {
		c.client = client
	}
}

// NewChatBot creates a ChatBot transport. Token and chat id are required.
func NewChatBot(cfg config.ChatBotDestinationConfig, log logger.ILogger, opts ...ChatBotOption) (*ChatBot, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("chatbot: token and chat id are required: %w", ErrMissingCredentials)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	c := &ChatBot{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.SubLogger("ChatBot"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the transport identifier.
func (c *ChatBot) Name() string {
	return "ChatBot"
}

// Open is a no-op; the HTTP client is ready at construction.
func (c *ChatBot) Open(ctx context.Context) error {
	return nil
}

// Handshake confirms the bot identity with getMe.
func (c *ChatBot) Handshake(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("getMe"), nil)
	if err != nil {
		return err
	}

	var me botUser
	if err := c.do(req, &me); err != nil {
		return fmt.Errorf("getMe: %w", err)
	}

	c.mu.Lock()
	c.botName = me.Username
	chatID := c.cfg.ChatID
	c.mu.Unlock()

	c.log.Infof("bot identified: username=%s, chat=%s", me.Username, chatID)
	return nil
}

// BotName returns the username confirmed by the last handshake.
func (c *ChatBot) BotName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botName
}

// SendText posts body to the chat. The bot API has no subject line.
func (c *ChatBot) SendText(ctx context.Context, body, subject string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": c.chatID(),
		"text":    body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	return nil
}

// SendFile uploads an image with sendPhoto or a video with sendVideo.
func (c *ChatBot) SendFile(ctx context.Context, asset model.CapturedAsset) error {
	method, field := "sendPhoto", "photo"
	if asset.Kind == model.KindVideo {
		method, field = "sendVideo", "video"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", c.chatID()); err != nil {
		return err
	}
	part, err := mw.CreateFormFile(field, asset.Name)
	if err != nil {
		return err
	}
	if err := c.writeMedia(part, asset); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("%s %s: %w", method, asset.Name, err)
	}
	c.log.Debugf("%s sent: name=%s", asset.Kind, asset.Name)
	return nil
}

// writeMedia copies the file into w, downscaling images that exceed the
// configured maximum dimension.
func (c *ChatBot) writeMedia(w io.Writer, asset model.CapturedAsset) error {
	if asset.Kind == model.KindImage && c.cfg.MaxImageDimension > 0 {
		img, err := imaging.Open(asset.Path, imaging.AutoOrientation(true))
		if err != nil {
			return fmt.Errorf("decoding %s: %w", asset.Path, err)
		}
		b := img.Bounds()
		limit := c.cfg.MaxImageDimension
		if b.Dx() > limit || b.Dy() > limit {
			img = imaging.Fit(img, limit, limit, imaging.Lanczos)
			return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(85))
		}
	}

	f, err := os.Open(asset.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

// Close is a no-op; requests do not hold connections open.
func (c *ChatBot) Close() error {
	return nil
}

// Wipe clears the token, chat id and bot identity.
func (c *ChatBot) Wipe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Token = ""
	c.cfg.ChatID = ""
	c.botName = ""
}

func (c *ChatBot) chatID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.ChatID
}

func (c *ChatBot) endpoint(method string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.APIURL + "/bot" + c.cfg.Token + "/" + method
}

// do executes req and decodes the result into out when non-nil.
func (c *ChatBot) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope botResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("status %d: decoding response: %w", resp.StatusCode, err)
	}
	if !envelope.OK || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, envelope.Description)
	}
	if out != nil {
		return json.Unmarshal(envelope.Result, out)
	}
	return nil
}
