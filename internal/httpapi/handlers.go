package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"creator_ingest/internal/model"
	"creator_ingest/internal/orchestrator"
	"creator_ingest/internal/platform"
	"creator_ingest/internal/storage"
)

type runFunc func(ctx context.Context, scope orchestrator.Scope) (*orchestrator.RunResult, error)

type detectResponse struct {
	Platform            model.Platform    `json:"platform"`
	PlatformUserID      string            `json:"platform_user_id"`
	CanonicalProfileURL string            `json:"canonical_profile_url"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

type createCreatorRequest struct {
	Name string `json:"name"`
	URLs []struct {
		URL      string `json:"url"`
		Platform string `json:"platform"`
	} `json:"urls"`
}

type urlResponse struct {
	ID       int64             `json:"id"`
	Platform model.Platform    `json:"platform"`
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Filters  int               `json:"filters"`
}

type creatorResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	UserID       string           `json:"user_id,omitempty"`
	FetchState   model.FetchState `json:"fetch_state"`
	URLs         []urlResponse    `json:"urls"`
	ContentCount *int             `json:"content_count,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

func newCreatorResponse(c *model.Creator) creatorResponse {
	res := creatorResponse{
		ID:         c.ID,
		Name:       c.Name,
		UserID:     c.UserID,
		FetchState: c.FetchState,
		URLs:       make([]urlResponse, 0, len(c.URLs)),
		CreatedAt:  c.CreatedAt,
	}
	for _, u := range c.URLs {
		res.URLs = append(res.URLs, urlResponse{
			ID:       u.ID,
			Platform: u.Platform,
			URL:      u.URL,
			Metadata: u.Metadata,
			Filters:  len(u.Filters),
		})
	}
	return res
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RefreshUser refreshes the caller's creators. "?platform=rss" limits the run
// to one platform.
func (h *Handler) RefreshUser(c *gin.Context) {
	scope := orchestrator.Scope{UserID: c.GetString(userKey)}
	if raw := c.Query("platform"); raw != "" {
		p, err := model.ParsePlatform(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		scope.Platforms = []model.Platform{p}
	}
	h.run(c, "manual", h.refresher.Refresh, scope)
}

// RefreshAll refreshes every creator.
func (h *Handler) RefreshAll(c *gin.Context) {
	h.run(c, "cron", h.refresher.Refresh, orchestrator.Scope{})
}

// RefreshUserCron refreshes the creators of the user in the path.
func (h *Handler) RefreshUserCron(c *gin.Context) {
	h.run(c, "cron_user", h.refresher.Refresh, orchestrator.Scope{UserID: c.Param("userID")})
}

// RefreshLinkedIn runs the batched LinkedIn pass over all creators.
func (h *Handler) RefreshLinkedIn(c *gin.Context) {
	h.run(c, "cron_linkedin", h.refresher.RefreshBatched,
		orchestrator.Scope{Platforms: []model.Platform{model.PlatformLinkedIn}})
}

// run detaches from the request's cancellation so a dropped client does not
// cut a run short halfway through a creator.
func (h *Handler) run(c *gin.Context, trigger string, fn runFunc, scope orchestrator.Scope) {
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := fn(ctx, scope)
	if err != nil {
		h.log.Error("refresh failed", "trigger", trigger, "user_id", scope.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	h.log.Info("refresh finished", "trigger", trigger, "user_id", scope.UserID,
		"new", res.Stats.New, "updated", res.Stats.Updated, "errors", res.Stats.Errors)
	c.JSON(http.StatusOK, res)
}

// Detect classifies the URL in "?url=".
func (h *Handler) Detect(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	det, err := platform.Detect(raw)
	if err != nil {
		var de *platform.DetectionError
		if errors.As(err, &de) {
			c.JSON(http.StatusBadRequest, gin.H{"error": de.Reason})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detectResponse{
		Platform:            det.Platform,
		PlatformUserID:      det.PlatformUserID,
		CanonicalProfileURL: det.CanonicalProfileURL,
		Metadata:            det.Metadata,
	})
}

// CreateCreator creates a creator owned by the caller.
func (h *Handler) CreateCreator(c *gin.Context) {
	var req createCreatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.URLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one url is required"})
		return
	}

	urls := make([]model.CreatorURL, 0, len(req.URLs))
	seen := make(map[string]bool, len(req.URLs))
	for i, in := range req.URLs {
		u, err := platform.Resolve(in.URL, in.Platform)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("urls[%d]: %v", i, err)})
			return
		}
		key := string(u.Platform) + " " + u.URL
		if seen[key] {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("urls[%d]: duplicate url %s", i, u.URL)})
			return
		}
		seen[key] = true
		urls = append(urls, u)
	}

	ctx := c.Request.Context()
	name := strings.TrimSpace(req.Name)
	if name == "" && h.meta != nil {
		if meta, err := h.meta.Fetch(ctx, req.URLs[0].URL); err == nil {
			name = meta.Title
		} else {
			h.log.Debug("page metadata", "url", req.URLs[0].URL, "error", err)
		}
	}
	if name == "" {
		name = urls[0].URL
	}

	creator := &model.Creator{Name: name, UserID: c.GetString(userKey), URLs: urls}
	if err := h.store.CreateCreator(ctx, creator); err != nil {
		h.log.Error("create creator", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	h.log.Info("creator created", "creator_id", creator.ID, "urls", len(creator.URLs))
	c.JSON(http.StatusCreated, newCreatorResponse(creator))
}

// GetCreator returns one of the caller's creators.
func (h *Handler) GetCreator(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	creator, err := h.store.GetCreator(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && creator.UserID != c.GetString(userKey)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Creator not found"})
		return
	}
	if err != nil {
		h.log.Error("get creator", "creator_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := newCreatorResponse(creator)
	count, err := h.store.CountContent(ctx, creator.ID)
	if err != nil {
		h.log.Error("count content", "creator_id", id, "error", err)
	} else {
		res.ContentCount = &count
	}
	c.JSON(http.StatusOK, res)
}
