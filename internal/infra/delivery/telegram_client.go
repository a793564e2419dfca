// internal/infra/delivery/telegram_client.go
package delivery

import (
	"context"
	"errors"
	"fmt"

	domainDelivery "birthday_notification_service/internal/domain/delivery"

	"gopkg.in/telebot.v3"
)

// TelegramClient delivers notifications through a Telegram bot using the
// gopkg.in/telebot.v3 library. The user's registry ID doubles as the
// Telegram chat ID for this channel.
type TelegramClient struct {
	bot *telebot.Bot
}

// NewTelegramClient creates the bot in send-only mode; no poller is
// started since this channel never receives updates.
func NewTelegramClient(token string) (*TelegramClient, error) {
	bot, err := telebot.NewBot(telebot.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return &TelegramClient{bot: bot}, nil
}

func (c *TelegramClient) Send(ctx context.Context, userID int64, message string) (domainDelivery.Result, error) {
	if err := ctx.Err(); err != nil {
		return domainDelivery.Result{}, err
	}

	recipient := &telebot.User{ID: userID}
	_, err := c.bot.Send(recipient, message)
	if err == nil {
		return domainDelivery.Result{Outcome: domainDelivery.Accepted}, nil
	}

	// Flood control is pressure, not rejection.
	var flood telebot.FloodError
	if errors.As(err, &flood) {
		return domainDelivery.Result{
			Outcome: domainDelivery.TransientError,
			Reason:  fmt.Sprintf("telegram flood control, retry after %ds", flood.RetryAfter),
		}, nil
	}

	// Other 4xx-class API errors mean the recipient cannot be reached at
	// all (blocked the bot, deactivated account, unknown chat); retrying
	// cannot help.
	var apiErr *telebot.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
		return domainDelivery.Result{
			Outcome: domainDelivery.Rejected,
			Reason:  apiErr.Description,
		}, nil
	}

	return domainDelivery.Result{}, fmt.Errorf("telegram send failed: %w", err)
}
