package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"creator_ingest/internal/filter"
	"creator_ingest/internal/model"
	"creator_ingest/internal/orchestrator"
	"creator_ingest/internal/platform"
	"creator_ingest/internal/storage"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Creator ingest console.

Track creators across RSS, YouTube, X, Threads and LinkedIn.

Quick start:
1. /add <url> [name] - add a creator by one of their URLs
2. /addurl <creator_id> <url> - attach another platform
3. /refresh <creator_id> - fetch new content now

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Creators:
/add <url> [name] - add a creator
/addurl <creator_id> <url> - add a URL to a creator
/rmurl <url_id> - remove a URL
/list - show your creators
/info <creator_id> - creator details
/rename <creator_id> <name> - rename a creator
/remove <creator_id> - delete a creator (stored content is kept)
/refresh <creator_id> - fetch new content now
/detect <url> - show which platform a URL belongs to

Filters (per URL):
/filters <url_id> - show filters
/include <url_id> [-s scope] <word> - whitelist word/phrase
/exclude <url_id> [-s scope] <word> - blacklist word/phrase
/include_re <url_id> [-s scope] <regex> - whitelist regex
/exclude_re <url_id> [-s scope] <regex> - blacklist regex
/rmfilter <filter_id> - remove a filter

Scope flag: -s title | content | all (default: all)`)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	rawURL, name, err := ParseAddArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /add <url> [name]")
		return
	}

	det, err := platform.Detect(rawURL)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Cannot add URL: %v", err))
		return
	}

	sourceURL := det.CanonicalProfileURL
	if sourceURL == "" {
		sourceURL = rawURL
	}

	if b.meta != nil && (name == "" || det.Platform == model.PlatformRSS) {
		meta, err := b.meta.Fetch(ctx, rawURL)
		if err != nil {
			b.log.Debug("page metadata", "url", rawURL, "error", err)
		} else {
			if name == "" {
				name = meta.Title
			}
			if det.Platform == model.PlatformRSS && meta.FeedURL != "" {
				sourceURL = meta.FeedURL
			}
		}
	}
	if name == "" {
		name = det.PlatformUserID
	}
	if name == "" {
		name = rawURL
	}

	c := &model.Creator{
		Name:   name,
		UserID: OwnerID(chatID),
		URLs: []model.CreatorURL{{
			Platform: det.Platform,
			URL:      sourceURL,
			Metadata: det.Metadata,
		}},
	}
	if err := b.store.CreateCreator(ctx, c); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save creator: %v", err))
		return
	}

	b.log.Info("creator added", "creator_id", c.ID, "platform", det.Platform, "chat_id", chatID)
	b.reply(chatID, fmt.Sprintf("Creator added: %s\nID: %s\nU%d %s: %s\nUse /refresh %s to fetch content now.",
		c.Name, c.ID, c.URLs[0].ID, platformLabel(det.Platform), sourceURL, c.ID))
}

func (b *Bot) handleAddURL(ctx context.Context, chatID int64, args string) {
	creatorID, rawURL, err := ParseAddURLArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	c, ok := b.ownedCreator(ctx, chatID, creatorID)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Creator %s not found.", creatorID))
		return
	}

	u, err := platform.Resolve(rawURL, "")
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Cannot add URL: %v", err))
		return
	}
	u.CreatorID = c.ID
	if err := b.store.AddCreatorURL(ctx, &u); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("U%d %s added to %s: %s", u.ID, platformLabel(u.Platform), c.Name, u.URL))
}

func (b *Bot) handleRmURL(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmurl <url_id>")
		return
	}

	u, c, ok := b.ownedURL(ctx, chatID, id)
	if !ok {
		b.reply(chatID, fmt.Sprintf("URL U%d not found.", id))
		return
	}
	if err := b.store.DeleteCreatorURL(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("U%d %s removed from %s.", id, u.URL, c.Name))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	creators, err := b.store.ListCreators(ctx, storage.CreatorQuery{UserID: OwnerID(chatID)})
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatCreatorList(creators, b.now()))
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, args string) {
	id, err := ParseCreatorArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /info <creator_id>")
		return
	}

	c, ok := b.ownedCreator(ctx, chatID, id)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Creator %s not found.", id))
		return
	}

	count, err := b.store.CountContent(ctx, c.ID)
	if err != nil {
		b.log.Error("count content", "creator_id", c.ID, "error", err)
	}

	msg := tgbotapi.NewMessage(chatID, FormatCreatorInfo(c, count, b.now()))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = infoKeyboard(c)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send creator info", "error", err)
	}
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	id, err := ParseCreatorArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <creator_id>")
		return
	}

	c, ok := b.ownedCreator(ctx, chatID, id)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Creator %s not found.", id))
		return
	}

	if err := b.store.DeleteCreator(ctx, c.ID); err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting creator: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Creator \"%s\" deleted.", c.Name))
}

func (b *Bot) handleRename(ctx context.Context, chatID int64, args string) {
	id, name, err := ParseRenameArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	c, ok := b.ownedCreator(ctx, chatID, id)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Creator %s not found.", id))
		return
	}

	if err := b.store.RenameCreator(ctx, c.ID, name); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Creator \"%s\" renamed to \"%s\".", c.Name, name))
}

func (b *Bot) handleRefresh(ctx context.Context, chatID int64, args string) {
	id, err := ParseCreatorArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /refresh <creator_id>")
		return
	}

	c, ok := b.ownedCreator(ctx, chatID, id)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Creator %s not found.", id))
		return
	}
	if b.refresher == nil {
		b.reply(chatID, "Refresh is not available.")
		return
	}

	res, err := b.refresher.Refresh(ctx, orchestrator.Scope{CreatorIDs: []string{c.ID}})
	b.reply(chatID, FormatRunReport(fmt.Sprintf("Refresh of %s", c.Name), res, err))
}

func (b *Bot) handleDetect(chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /detect <url>")
		return
	}
	det, err := platform.Detect(args)
	if err != nil {
		var de *platform.DetectionError
		if errors.As(err, &de) {
			b.reply(chatID, fmt.Sprintf("Not recognised: %s", de.Reason))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatDetection(det))
}

func (b *Bot) handleFilters(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /filters <url_id>")
		return
	}

	u, _, ok := b.ownedURL(ctx, chatID, id)
	if !ok {
		b.reply(chatID, fmt.Sprintf("URL U%d not found.", id))
		return
	}

	filters, _ := b.store.ListFilters(ctx, u.ID)
	b.reply(chatID, FormatFilterList(u, filters))
}

func (b *Bot) handleAddFilter(ctx context.Context, chatID int64, args string, kind string) {
	parsed, err := ParseFilterCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	u, _, ok := b.ownedURL(ctx, chatID, parsed.URLID)
	if !ok {
		b.reply(chatID, fmt.Sprintf("URL U%d not found.", parsed.URLID))
		return
	}

	fk := model.FilterKind(kind)
	if fk == model.FilterIncludeRe || fk == model.FilterExcludeRe {
		if err := filter.ValidateRegex(parsed.Value); err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid regex: %v", err))
			return
		}
	}

	f := &model.Filter{
		URLID: u.ID,
		Kind:  fk,
		Scope: parsed.Scope,
		Value: parsed.Value,
	}
	if err := b.store.CreateFilter(ctx, f); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("Filter F%d added to U%d: %s %s (%s)",
		f.ID, u.ID, kind, parsed.Value, scopeLabel(parsed.Scope)))
}

func (b *Bot) handleRmFilter(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmfilter <filter_id>")
		return
	}

	f, err := b.store.GetFilter(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Filter F%d not found.", id))
		return
	}
	if _, _, ok := b.ownedURL(ctx, chatID, f.URLID); !ok {
		b.reply(chatID, fmt.Sprintf("Filter F%d not found.", id))
		return
	}

	if err := b.store.DeleteFilter(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Filter F%d removed from U%d.", id, f.URLID))
}

// ownedCreator loads a creator and reports whether chatID owns it.
func (b *Bot) ownedCreator(ctx context.Context, chatID int64, id string) (*model.Creator, bool) {
	c, err := b.store.GetCreator(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.log.Error("get creator", "creator_id", id, "error", err)
		}
		return nil, false
	}
	return c, c.UserID == OwnerID(chatID)
}

func (b *Bot) ownedURL(ctx context.Context, chatID int64, id int64) (*model.CreatorURL, *model.Creator, bool) {
	u, err := b.store.GetCreatorURL(ctx, id)
	if err != nil {
		return nil, nil, false
	}
	c, ok := b.ownedCreator(ctx, chatID, u.CreatorID)
	if !ok {
		return nil, nil, false
	}
	return u, c, true
}
