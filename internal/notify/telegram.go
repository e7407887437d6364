// Package notify tells center managers about booking changes over Telegram.
package notify

import (
	"fmt"
	"strings"

	"strikedesk/internal/config"
	"strikedesk/internal/events"
	"strikedesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramSender is the part of the bot API the notifier needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends a short message per booking event to every manager chat.
type Notifier struct {
	bot      TelegramSender
	managers []int64
	catalog  func() *config.Catalog
	logger   *zerolog.Logger
}

// NewTelegram connects to the bot API with token.
func NewTelegram(token string, managers []int64, catalog func() *config.Catalog, logger *zerolog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return NewWithSender(api, managers, catalog, logger), nil
}

func NewWithSender(bot TelegramSender, managers []int64, catalog func() *config.Catalog, logger *zerolog.Logger) *Notifier {
	l := logger.With().Str("component", "notify").Logger()
	return &Notifier{bot: bot, managers: managers, catalog: catalog, logger: &l}
}

// Subscribe registers the notifier for every booking event.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(n.Handle, events.AllTypes...)
}

// Handle sends the event to all managers. Send failures are logged, never returned.
func (n *Notifier) Handle(e events.Event) error {
	if len(e.Bookings) == 0 || len(n.managers) == 0 {
		return nil
	}
	text := n.format(e)
	for _, chatID := range n.managers {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Str("type", e.Type).Msg("failed to notify manager")
		}
	}
	return nil
}

func (n *Notifier) format(e events.Event) string {
	var title string
	switch e.Type {
	case events.BookingCreated:
		title = "New booking"
	case events.BookingActivated:
		title = "Booking activated"
	case events.BookingCancelled:
		title = "Booking cancelled"
	case events.BookingCompleted:
		title = "Booking completed"
	default:
		title = e.Type
	}

	first := e.Bookings[0]
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString(": ")
	sb.WriteString(n.centerName(int(first.Center)))
	if first.BookedBy != "" {
		sb.WriteString(", ")
		sb.WriteString(first.BookedBy)
	}
	for _, b := range e.Bookings {
		slot := b.Slot()
		sb.WriteString("\n")
		sb.WriteString(slot.Date)
		sb.WriteString(" ")
		sb.WriteString(slot.Time)
		if e.Type == events.BookingActivated && b.ExpiryTime != nil {
			sb.WriteString(" until ")
			sb.WriteString(b.ExpiryTime.Format(models.TimeLayout))
		}
	}
	return sb.String()
}

func (n *Notifier) centerName(id int) string {
	if n.catalog != nil {
		if c := n.catalog().CenterByID(id); c != nil {
			return c.Name
		}
	}
	return fmt.Sprintf("center %d", id)
}
