package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"creator_ingest/internal/model"
)

const (
	cmdRefresh  = "refresh"
	cmdFilters  = "filters"
	cmdRmFilter = "rmfilter"
)

// maxFilterButtons caps the per-URL buttons under /info.
const maxFilterButtons = 6

func infoKeyboard(c *model.Creator) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Refresh", cmdRefresh+":"+c.ID),
			tgbotapi.NewInlineKeyboardButtonData("Delete", "delete_confirm:"+c.ID),
		),
	}
	var row []tgbotapi.InlineKeyboardButton
	for i, u := range c.URLs {
		if i == maxFilterButtons {
			break
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("Filters U%d", u.ID), fmt.Sprintf("%s:%d", cmdFilters, u.ID)))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, id, ok := strings.Cut(data, ":")
	if !ok || id == "" {
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdFilters:
		b.handleFilters(ctx, chatID, id)
	case cmdRefresh:
		b.handleRefresh(ctx, chatID, id)
	case "delete_confirm":
		c, owned := b.ownedCreator(ctx, chatID, id)
		if !owned {
			b.reply(chatID, fmt.Sprintf("Creator %s not found.", id))
			return
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Delete creator \"%s\"? Stored content is kept.", c.Name))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, delete", "delete:"+c.ID),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send delete confirmation", "error", err)
		}
	case "delete":
		b.handleRemove(ctx, chatID, id)
	case cmdRmFilter:
		b.handleRmFilter(ctx, chatID, id)
	}
}
