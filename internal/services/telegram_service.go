package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const telegramAPI = "https://api.telegram.org"

// TelegramService posts order notifications to the staff chat. It satisfies
// Notifier.
type TelegramService struct {
	botToken    string
	adminChatID string
	baseURL     string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     telegramAPI,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether both the bot token and chat are configured.
func (s *TelegramService) Enabled() bool {
	return s.botToken != "" && s.adminChatID != ""
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendToAdmin sends an HTML message to the staff chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if !s.Enabled() {
		log.Debug().Msg("telegram not configured, skipping message")
		return nil
	}

	body, err := json.Marshal(telegramMessage{ChatID: s.adminChatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// OrderConfirmed announces a new order.
func (s *TelegramService) OrderConfirmed(ctx context.Context, n OrderNotification) error {
	return s.SendToAdmin(ctx, formatOrderMessage("🛒 NEW ORDER", n))
}

// OrderCompleted announces a delivered order.
func (s *TelegramService) OrderCompleted(ctx context.Context, n OrderNotification) error {
	return s.SendToAdmin(ctx, formatOrderMessage("✅ ORDER COMPLETED", n))
}

func formatOrderMessage(title string, n OrderNotification) string {
	var items strings.Builder
	for i, it := range n.Items {
		variant := strings.TrimSpace(strings.Join([]string{it.Color, it.Storage}, " "))
		if variant != "" {
			variant = " (" + html.EscapeString(variant) + ")"
		}
		fmt.Fprintf(&items, "%d. <b>%s</b>%s\n   %d x %s = %s\n",
			i+1,
			html.EscapeString(it.Name),
			variant,
			it.Quantity,
			FormatPrice(it.Price),
			FormatPrice(it.Price*int64(it.Quantity)),
		)
	}

	msg := fmt.Sprintf(`<b>%s</b>
<b>Order:</b> %s
<b>Customer:</b> %s
<b>Phone:</b> %s
<b>Address:</b> %s
<b>Items:</b>
%s
<b>Total:</b> %s
<b>Payment:</b> %s`,
		title,
		n.OrderID,
		html.EscapeString(n.CustomerName),
		html.EscapeString(n.Phone),
		html.EscapeString(n.ShippingAddress),
		items.String(),
		FormatPrice(n.TotalPrice),
		html.EscapeString(n.PaymentMethod),
	)
	return strings.TrimSpace(msg)
}
