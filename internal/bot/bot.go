// Package bot is the Telegram admin console: it manages creators, their URLs
// and filters, triggers refreshes and delivers run reports.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"creator_ingest/internal/config"
	"creator_ingest/internal/orchestrator"
	"creator_ingest/internal/pagemeta"
	"creator_ingest/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Refresher runs an ingestion pass.
type Refresher interface {
	Refresh(ctx context.Context, scope orchestrator.Scope) (*orchestrator.RunResult, error)
}

// MetaReader looks up page metadata used to name new creators.
type MetaReader interface {
	Fetch(ctx context.Context, pageURL string) (pagemeta.Meta, error)
}

// Bot is the Telegram bot that handles admin commands and sends reports.
type Bot struct {
	api       telegramAPI
	store     storage.Storage
	cfg       *config.Config
	refresher Refresher
	meta      MetaReader
	log       *slog.Logger
	now       func() time.Time
}

// New creates a Bot with the given Telegram token, storage and refresher.
func New(token string, store storage.Storage, refresher Refresher, meta MetaReader, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:       api,
		store:     store,
		cfg:       cfg,
		refresher: refresher,
		meta:      meta,
		log:       log,
		now:       time.Now,
	}, nil
}

// OwnerID is the creator owner recorded for creators added from chatID.
func OwnerID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// Run long-polls Telegram until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := b.api.GetUpdatesChan(cfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate routes one update. Users outside the allow list get a refusal
// for commands; their button presses are dropped.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From == nil || !b.cfg.IsUserAllowed(q.From.ID) {
			b.log.Warn("callback from user not allowed", "data", q.Data)
			return
		}
		b.handleCallback(ctx, q)
	case update.Message != nil && update.Message.IsCommand():
		msg := update.Message
		if msg.From == nil || !b.cfg.IsUserAllowed(msg.From.ID) {
			b.reply(msg.Chat.ID, "Access denied.")
			return
		}
		b.handleCommand(ctx, msg)
	}
}

// SendMessage sends text to chatID without link previews. Failures are
// logged; reports are best effort.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

type commandFunc func(ctx context.Context, chatID int64, args string)

func (b *Bot) commands() map[string]commandFunc {
	filterCmd := func(kind string) commandFunc {
		return func(ctx context.Context, chatID int64, args string) {
			b.handleAddFilter(ctx, chatID, args, kind)
		}
	}
	return map[string]commandFunc{
		"start":      func(_ context.Context, chatID int64, _ string) { b.handleStart(chatID) },
		"help":       func(_ context.Context, chatID int64, _ string) { b.handleHelp(chatID) },
		"list":       func(ctx context.Context, chatID int64, _ string) { b.handleList(ctx, chatID) },
		"detect":     func(_ context.Context, chatID int64, args string) { b.handleDetect(chatID, args) },
		"add":        b.handleAdd,
		"addurl":     b.handleAddURL,
		"rmurl":      b.handleRmURL,
		"info":       b.handleInfo,
		"remove":     b.handleRemove,
		"rename":     b.handleRename,
		cmdRefresh:   b.handleRefresh,
		cmdFilters:   b.handleFilters,
		cmdRmFilter:  b.handleRmFilter,
		"include":    filterCmd("include"),
		"exclude":    filterCmd("exclude"),
		"include_re": filterCmd("include_re"),
		"exclude_re": filterCmd("exclude_re"),
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	fn, ok := b.commands()[cmd]
	if !ok {
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
		return
	}
	fn(ctx, chatID, args)
}
