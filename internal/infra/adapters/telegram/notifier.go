package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/adapter"
)

var _ adapter.ResultNotifier = (*BotNotifier)(nil)

// BotNotifier delivers job results and balance updates over Telegram.
// User ids are the Telegram chat ids, as strings.
type BotNotifier struct {
	bot *tgbotapi.BotAPI
	log *zerolog.Logger
}

func NewBotNotifier(token string, log *zerolog.Logger) (*BotNotifier, error) {
	if token == "" {
		return nil, errors.New("telegram token empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &BotNotifier{bot: bot, log: log}, nil
}

func chatID(userID string) (int64, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("user id %q is not a chat id: %w", userID, err)
	}
	return id, nil
}

func (n *BotNotifier) NotifyJobSucceeded(ctx context.Context, userID string, job *model.Job) error {
	id, err := chatID(userID)
	if err != nil {
		return err
	}

	ref := job.ResultRef
	var photo tgbotapi.RequestFileData
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		photo = tgbotapi.FileURL(ref)
	default:
		if _, serr := os.Stat(ref); serr != nil {
			msg := tgbotapi.NewMessage(id, "Your image is ready: "+ref)
			_, err = n.bot.Send(msg)
			return err
		}
		photo = tgbotapi.FilePath(ref)
	}

	p := tgbotapi.NewPhoto(id, photo)
	p.Caption = job.Payload.Prompt
	_, err = n.bot.Send(p)
	return err
}

func (n *BotNotifier) NotifyJobFailed(ctx context.Context, userID string, job *model.Job) error {
	id, err := chatID(userID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Generation failed, %d tokens returned to your balance.", job.Cost)
	_, err = n.bot.Send(tgbotapi.NewMessage(id, text))
	return err
}

func (n *BotNotifier) NotifyTokensCredited(ctx context.Context, userID string, tokens, newBalance int64) error {
	id, err := chatID(userID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Payment received: +%d tokens. Balance: %d.", tokens, newBalance)
	_, err = n.bot.Send(tgbotapi.NewMessage(id, text))
	return err
}
