package notify

import (
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"paper-review-batch/internal/domain/model"

	"github.com/rs/zerolog"
)

// TelegramNotifier pushes a one-message batch summary to an operator chat
// when a run finishes.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is zero")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "TelegramNotifier").Logger()
	return &TelegramNotifier{bot: bot, chatID: chatID, log: &l}, nil
}

func (n *TelegramNotifier) NotifyBatchDone(summary model.BatchSummary, elapsed string) error {
	text := fmt.Sprintf(
		"Paper review batch finished\nTotal: %d\nSuccess: %d\nFailed: %d\nInvalid: %d\nTimed out: %d\nElapsed: %s",
		summary.Total,
		summary.Count(model.StatusSuccess),
		summary.Count(model.StatusFailed),
		summary.Count(model.StatusInvalid),
		summary.Count(model.StatusTimedOut),
		elapsed,
	)
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error().Err(err).Msg("send batch summary")
		return err
	}
	return nil
}
