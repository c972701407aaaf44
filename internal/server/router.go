package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/propforge/docsync/internal/auth"
	"github.com/propforge/docsync/internal/docsync"
)

const identityContextKey = "docsync_identity"

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingSyncService    = errors.New("sync service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenValidator checks API bearer tokens and returns the caller identity.
type TokenValidator interface {
	ValidateToken(token string) (auth.Identity, error)
}

// Dependencies bundles the collaborators for the HTTP surface.
type Dependencies struct {
	TokenValidator TokenValidator
	SyncService    *docsync.Service
	Queue          *docsync.Queue
	Events         *StatusDispatcher
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router. Webhooks are unauthenticated because
// cloud providers call them; everything else requires a bearer token.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenValidator == nil {
		return nil, errMissingTokenValidator
	}
	if deps.SyncService == nil {
		return nil, errMissingSyncService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:      deps.TokenValidator,
		syncService: deps.SyncService,
		queue:       deps.Queue,
		events:      deps.Events,
		logger:      logger,
	}

	router.POST("/webhooks/:provider", handler.handleProviderWebhook)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/documents/:id/sync", handler.handleInitializeSync)
	protected.POST("/documents/:id/disconnect", handler.handleDisconnect)
	protected.POST("/documents/:id/push", handler.handlePush)
	protected.GET("/documents/:id/status", handler.handleSyncStatus)
	protected.GET("/documents/:id/versions", handler.handleVersionHistory)
	protected.GET("/documents/:id/versions/diff", handler.handleVersionDiff)
	protected.GET("/documents/:id/conflicts", handler.handleConflictHistory)
	protected.GET("/documents/:id/merge-preview", handler.handleMergePreview)
	protected.POST("/conflicts/:id/resolve", handler.handleResolveConflict)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	tokens      TokenValidator
	syncService *docsync.Service
	queue       *docsync.Queue
	events      *StatusDispatcher
	logger      *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	identity, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

func currentIdentity(c *gin.Context) (auth.Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

type syncStatePayload struct {
	DocumentID             string `json:"document_id"`
	Provider               string `json:"provider"`
	CloudFileID            string `json:"cloud_file_id"`
	SyncStatus             string `json:"sync_status"`
	LastSyncAtSeconds      int64  `json:"last_sync_at_s"`
	LastLocalEditAtSeconds int64  `json:"last_local_edit_at_s"`
	LastCloudEditAtSeconds int64  `json:"last_cloud_edit_at_s"`
	UpdatedAtSeconds       int64  `json:"updated_at_s"`
}

func toSyncStatePayload(state *docsync.SyncState) syncStatePayload {
	return syncStatePayload{
		DocumentID:             state.DocumentID,
		Provider:               state.Provider,
		CloudFileID:            state.CloudFileID,
		SyncStatus:             state.SyncStatus,
		LastSyncAtSeconds:      state.LastSyncAtSeconds,
		LastLocalEditAtSeconds: state.LastLocalEditAtSeconds,
		LastCloudEditAtSeconds: state.LastCloudEditAtSeconds,
		UpdatedAtSeconds:       state.UpdatedAtSeconds,
	}
}

type initializeSyncPayload struct {
	Provider    string `json:"provider"`
	CloudFileID string `json:"cloud_file_id"`
}

func (h *httpHandler) handleInitializeSync(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	documentID, err := docsync.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}

	var request initializeSyncPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.CloudFileID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	provider, err := docsync.ParseProvider(request.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_provider"})
		return
	}
	companyID, err := docsync.NewCompanyID(identity.CompanyID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	state, err := h.syncService.InitializeSync(c.Request.Context(),
		documentID, provider, strings.TrimSpace(request.CloudFileID), companyID, identity.UserID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSyncStatePayload(state))
}

type disconnectPayload struct {
	Provider string `json:"provider"`
}

func (h *httpHandler) handleDisconnect(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	documentID, err := docsync.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}
	var request disconnectPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	provider, err := docsync.ParseProvider(request.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_provider"})
		return
	}

	if err := h.syncService.DisconnectProvider(c.Request.Context(), documentID, provider, identity.UserID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

type pushPayload struct {
	Provider string `json:"provider"`
	Content  string `json:"content"`
	Deferred bool   `json:"deferred"`
	Priority int    `json:"priority"`
}

type pushResponsePayload struct {
	State         syncStatePayload `json:"state"`
	VersionNumber int64            `json:"version_number"`
	Additions     int              `json:"additions"`
	Deletions     int              `json:"deletions"`
	Modifications int              `json:"modifications"`
}

func (h *httpHandler) handlePush(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	documentID, err := docsync.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}
	var request pushPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	provider, err := docsync.ParseProvider(request.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_provider"})
		return
	}

	if request.Deferred && h.queue != nil {
		companyID, err := docsync.NewCompanyID(identity.CompanyID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := h.syncService.SaveLocalContent(c.Request.Context(), documentID, companyID, request.Content); err != nil {
			h.respondServiceError(c, err)
			return
		}
		h.queue.Enqueue(docsync.QueueItem{
			DocumentID: documentID.String(),
			Provider:   provider,
			Action:     docsync.ActionPush,
			Priority:   request.Priority,
		})
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
		return
	}

	result, err := h.syncService.SyncToCloud(c.Request.Context(),
		documentID, request.Content, provider, identity.UserID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, pushResponsePayload{
		State:         toSyncStatePayload(result.State),
		VersionNumber: result.VersionNumber,
		Additions:     result.Summary.Additions,
		Deletions:     result.Summary.Deletions,
		Modifications: result.Summary.Modifications,
	})
}

func (h *httpHandler) handleSyncStatus(c *gin.Context) {
	documentID, err := docsync.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}

	state, err := h.syncService.GetSyncStatus(c.Request.Context(), documentID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, toSyncStatePayload(state))
}

type versionPayload struct {
	ID               string `json:"id"`
	VersionNumber    int64  `json:"version_number"`
	Source           string `json:"source"`
	DiffSummaryJSON  string `json:"diff_summary,omitempty"`
	CreatedBy        string `json:"created_by"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

func (h *httpHandler) handleVersionHistory(c *gin.Context) {
	documentID, err := docsync.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	versions, err := h.syncService.VersionHistory(c.Request.Context(), documentID, limit)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	payload := make([]versionPayload, 0, len(versions))
	for _, version := range versions {
		entry := versionPayload{
			ID:               version.ID,
			VersionNumber:    version.VersionNumber,
			Source:           version.Source,
			CreatedBy:        version.CreatedBy,
			CreatedAtSeconds: version.CreatedAtSeconds,
		}
		if version.DiffSummaryJSON != nil {
			entry.DiffSummaryJSON = *version.DiffSummaryJSON
		}
		payload = append(payload, entry)
	}
	c.JSON(http.StatusOK, gin.H{"versions": payload})
}

func (h *httpHandler) handleVersionDiff(c *gin.Context) {
	fromID := strings.TrimSpace(c.Query("from"))
	toID := strings.TrimSpace(c.Query("to"))
	if fromID == "" || toID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.syncService.VersionDiff(c.Request.Context(), fromID, toID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, result)
}

type conflictPayload struct {
	ID                    string  `json:"id"`
	DocumentID            string  `json:"document_id"`
	SectionID             *string `json:"section_id,omitempty"`
	LocalContent          string  `json:"local_content"`
	LocalUpdatedAtSeconds int64   `json:"local_updated_at_s"`
	CloudContent          string  `json:"cloud_content"`
	CloudUpdatedAtSeconds int64   `json:"cloud_updated_at_s"`
	CloudSource           string  `json:"cloud_source"`
	Resolution            string  `json:"resolution"`
	ResolvedBy            *string `json:"resolved_by,omitempty"`
	ResolvedAtSeconds     *int64  `json:"resolved_at_s,omitempty"`
	CreatedAtSeconds      int64   `json:"created_at_s"`
}

func toConflictPayload(conflict *docsync.Conflict) conflictPayload {
	return conflictPayload{
		ID:                    conflict.ID,
		DocumentID:            conflict.DocumentID,
		SectionID:             conflict.SectionID,
		LocalContent:          conflict.LocalContent,
		LocalUpdatedAtSeconds: conflict.LocalUpdatedAtSeconds,
		CloudContent:          conflict.CloudContent,
		CloudUpdatedAtSeconds: conflict.CloudUpdatedAtSeconds,
		CloudSource:           conflict.CloudSource,
		Resolution:            conflict.Resolution,
		ResolvedBy:            conflict.ResolvedBy,
		ResolvedAtSeconds:     conflict.ResolvedAtSeconds,
		CreatedAtSeconds:      conflict.CreatedAtSeconds,
	}
}

func (h *httpHandler) handleConflictHistory(c *gin.Context) {
	documentID, err := docsync.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}

	conflicts, err := h.syncService.ConflictHistory(c.Request.Context(), documentID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	payload := make([]conflictPayload, 0, len(conflicts))
	for i := range conflicts {
		payload = append(payload, toConflictPayload(&conflicts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": payload})
}

type mergePreviewPayload struct {
	ConflictID    string                   `json:"conflict_id"`
	MergedContent string                   `json:"merged_content"`
	Regions       []docsync.ConflictRegion `json:"conflict_regions"`
}

func (h *httpHandler) handleMergePreview(c *gin.Context) {
	documentID, err := docsync.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return
	}

	conflict, err := h.syncService.OpenConflict(c.Request.Context(), documentID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if conflict == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_open_conflict"})
		return
	}

	report := docsync.DetectConflict(conflict.LocalContent, conflict.CloudContent, nil)
	c.JSON(http.StatusOK, mergePreviewPayload{
		ConflictID:    conflict.ID,
		MergedContent: docsync.MergedContent(conflict.LocalContent, conflict.CloudContent),
		Regions:       report.Regions,
	})
}

type resolvePayload struct {
	Resolution string `json:"resolution"`
}

func (h *httpHandler) handleResolveConflict(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	conflictID := strings.TrimSpace(c.Param("id"))

	var request resolvePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	resolution, err := docsync.ParseResolution(request.Resolution)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_resolution"})
		return
	}

	conflict, err := h.syncService.ResolveConflict(c.Request.Context(), conflictID, resolution, identity.UserID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toConflictPayload(conflict))
}

func (h *httpHandler) handleProviderWebhook(c *gin.Context) {
	provider, err := docsync.ParseProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_provider"})
		return
	}

	payload := map[string]any{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.syncService.ProcessWebhook(c.Request.Context(), provider, payload); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok || h.events == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	stream, cleanup := h.events.Subscribe(c.Request.Context(), identity.CompanyID)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case event, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(EventSyncStatus, gin.H{
				"document_id": event.DocumentID,
				"provider":    event.Provider,
				"status":      string(event.Status),
				"at_s":        event.At.Unix(),
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(eventHeartbeat, gin.H{})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, docsync.ErrAlreadyInitialized):
		c.JSON(http.StatusConflict, gin.H{"error": "already_initialized"})
	case errors.Is(err, docsync.ErrNotInitialized):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_initialized"})
	case errors.Is(err, docsync.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, docsync.ErrInvalidResolution):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_resolution"})
	case errors.Is(err, docsync.ErrProviderUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provider_unavailable"})
	case errors.Is(err, docsync.ErrFetchFailed), errors.Is(err, docsync.ErrUploadFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "cloud_sync_failed"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		response := gin.H{"error": "internal_error"}
		var serviceErr *docsync.ServiceError
		if errors.As(err, &serviceErr) {
			response["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, response)
	}
}
