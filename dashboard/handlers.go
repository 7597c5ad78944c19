package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/unified_backend/config"
	"github.com/mmdatafocus/unified_backend/unified"
	"github.com/mmdatafocus/unified_backend/utils"
	"github.com/sirupsen/logrus"
)

// Handler serves the dashboard JSON surface. Upstream failures are reported inside a 200
// envelope as {success:false, message, error_kind}.
type Handler struct {
	aggregator *unified.Aggregator
	accessor   *unified.Accessor
	settings   config.PlatformSettings
	logger     *logrus.Logger
}

func New(aggregator *unified.Aggregator) *Handler {
	logger := config.GetLogger()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		aggregator: aggregator,
		accessor:   aggregator.Accessor(),
		settings:   aggregator.Settings(),
		logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/up", h.Up())
	r.GET("/test_zendesk_connection", h.TestConnection())
	r.GET("/fetch_employees", h.FetchResource(unified.ResourceEmployees, "employees"))
	r.GET("/fetch_tickets", h.FetchResource(unified.ResourceTickets, "tickets"))
	r.GET("/fetch_contacts", h.FetchResource(unified.ResourceContacts, "contacts"))
	r.GET("/fetch_candidates", h.FetchResource(unified.ResourceCandidates, "candidates"))
	r.GET("/fetch_companies", h.FetchResource(unified.ResourceCompanies, "companies"))
	if config.DebugEndpointsEnabled() {
		r.GET("/debug_api_response", h.DebugAPIResponse())
	}
	r.GET("/platform_data", h.PlatformData())
	r.GET("/unified_customer_view", h.UnifiedCustomerView())
	r.POST("/create_cross_platform_ticket", h.CreateCrossPlatformTicket())
	r.GET("/platform_status", h.PlatformStatus())
	r.GET("/youtube_users", h.YouTubeUsers())
	r.GET("/youtube_users/export", h.ExportYouTubeUsers())
	r.GET("/youtube_user_profile", h.YouTubeUserProfile())
}

func (h *Handler) Up() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func failure(message string, err error) gin.H {
	body := gin.H{"success": false, "message": message}
	if kind := unified.KindOf(err); kind != "" {
		body["error_kind"] = kind
	}
	return body
}

// TestConnection probes the connection (default: the support platform's).
func (h *Handler) TestConnection() gin.HandlerFunc {
	return func(c *gin.Context) {
		connectionID := c.DefaultQuery("connection_id", h.settings.ConnectionID(h.settings.SupportSystem))
		probe, err := h.accessor.TestConnection(c.Request.Context(), connectionID)
		if err != nil {
			c.JSON(http.StatusOK, failure("Error testing connection: "+err.Error(), err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": probe.OK(),
			"message": probe.Message(),
			"details": probe.Details,
		})
	}
}

func (h *Handler) FetchResource(resource, itemsKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := h.accessor.FetchResource(c.Request.Context(), resource, c.Query("connection_id"))
		if err != nil {
			config.LogWarn(h.logger, "dashboard", "FetchResource", resource, err)
		}
		c.JSON(http.StatusOK, unified.NewResult(items, err).Body(itemsKey))
	}
}

var debugResources = []string{
	unified.ResourceEmployees,
	unified.ResourceTickets,
	unified.ResourceContacts,
	unified.ResourceCandidates,
}

// DebugAPIResponse shows the raw answer, its shape and its top-level keys for each resource.
func (h *Handler) DebugAPIResponse() gin.HandlerFunc {
	return func(c *gin.Context) {
		connectionID := c.Query("connection_id")
		if connectionID == "" {
			if hr := h.settings.HRSystems(); len(hr) > 0 {
				connectionID = hr[0].ConnectionID
			}
		}
		responses := map[string]json.RawMessage{}
		types := map[string]interface{}{}
		keys := map[string]interface{}{}
		for _, resource := range debugResources {
			raw, err := h.accessor.Raw(c.Request.Context(), resource, connectionID)
			if err != nil {
				c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error(), "error_kind": unified.KindOf(err)})
				return
			}
			responses[resource] = raw.Body
			types[resource] = raw.Shape
			if len(raw.Keys) > 0 {
				keys[resource] = raw.Keys
			} else {
				keys[resource] = "N/A"
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"connection_id":  connectionID,
			"responses":      responses,
			"response_types": types,
			"response_keys":  keys,
		})
	}
}

// PlatformData fetches one data type from one platform; the connection defaults to the platform's own.
func (h *Handler) PlatformData() gin.HandlerFunc {
	return func(c *gin.Context) {
		platform := strings.ToLower(strings.TrimSpace(c.Query("platform")))
		dataType := strings.ToLower(strings.TrimSpace(c.Query("data_type")))
		connectionID := c.DefaultQuery("connection_id", h.settings.ConnectionID(platform))

		items, err := h.accessor.Fetch(c.Request.Context(), platform, dataType, connectionID)
		if err != nil {
			body := failure(unified.NewResult(nil, err).Message, err)
			body["platform"] = platform
			body["data_type"] = dataType
			c.JSON(http.StatusOK, body)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"platform":  platform,
			"data_type": dataType,
			"data":      unified.NewResult(items, nil).Items,
		})
	}
}

func (h *Handler) UnifiedCustomerView() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success":          true,
			"customer_profile": h.aggregator.UnifiedCustomerView(c.Query("email")),
		})
	}
}

type crossPlatformTicketRequest struct {
	TicketData json.RawMessage `json:"ticket_data" binding:"required"`
	Platforms  []string        `json:"platforms"`
}

func (h *Handler) CreateCrossPlatformTicket() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req crossPlatformTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request"})
			return
		}
		results := h.aggregator.CreateCrossPlatformTicket(c.Request.Context(), req.TicketData, req.Platforms)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Ticket created across platforms",
			"results": results,
		})
	}
}

type platformInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ConnectionID string `json:"connection_id"`
	Status       string `json:"status"`
}

var platformDescriptions = []struct {
	id, name, description string
	always                bool
}{
	{config.SystemZendesk, "Zendesk", "Customer support for some YouTube users", true},
	{config.SystemHR1, "HR1", "HR system for some YouTube users", true},
	{config.SystemHR2, "HR2", "HR system for other YouTube users", true},
	{config.SystemHR3, "HR3", "HR system for other YouTube users", true},
	{config.SystemYouTube, "YouTube", "Content platform for all users", true},
	{config.SystemHubSpot, "HubSpot", "CRM contacts and companies", false},
	{config.SystemFirefish, "Firefish", "Recruitment CRM contacts", false},
	{config.SystemWhatsApp, "WhatsApp", "Customer messaging", false},
}

// PlatformStatus lists the core systems, plus optional ones that have a connection.
func (h *Handler) PlatformStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		platforms := map[string]platformInfo{}
		for _, p := range platformDescriptions {
			connectionID := h.settings.ConnectionID(p.id)
			if !p.always && connectionID == "" {
				continue
			}
			status := "Connected"
			if connectionID == "" {
				status = "Not configured"
			}
			platforms[p.id] = platformInfo{
				Name:         p.name,
				Description:  p.description,
				ConnectionID: connectionID,
				Status:       status,
			}
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "platforms": platforms})
	}
}

func (h *Handler) YouTubeUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := h.aggregator.BuildAllProfiles(c.Request.Context())
		if err != nil {
			config.LogError(h.logger, "dashboard", "YouTubeUsers", "", nil, err)
			c.JSON(http.StatusOK, failure("Error getting all YouTube users info: "+unified.NewResult(nil, err).Message, err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"total_users": len(all),
			"users":       all,
		})
	}
}

func (h *Handler) YouTubeUserProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		bundle, err := h.aggregator.UserProfile(c.Request.Context(), c.Query("email"))
		if err != nil {
			if unified.IsKind(err, unified.KindNotFound) {
				c.JSON(http.StatusOK, failure("YouTube user not found", err))
				return
			}
			c.JSON(http.StatusOK, failure("Error getting YouTube user profile: "+unified.NewResult(nil, err).Message, err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"user_profile": bundle.UnifiedProfile,
			"raw_data":     bundle,
		})
	}
}

const exportLinkTTL = 15 * time.Minute

// ExportYouTubeUsers downloads every unified profile as xlsx, or uploads it to GCS with ?upload=true.
func (h *Handler) ExportYouTubeUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		all, err := h.aggregator.BuildAllProfiles(ctx)
		if err != nil {
			c.JSON(http.StatusBadGateway, failure(unified.NewResult(nil, err).Message, err))
			return
		}
		data, err := exportProfiles(all)
		if err != nil {
			config.LogError(h.logger, "dashboard", "ExportYouTubeUsers", "", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
			return
		}

		if c.Query("upload") == "true" {
			if !utils.GCSConfigured() {
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "GCS_BUCKET is not configured"})
				return
			}
			objectName := fmt.Sprintf("exports/youtube-users-%s.xlsx", uuid.NewString())
			url, err := utils.UploadBytesToGCS(ctx, objectName, data, utils.ContentTypeXLSX)
			if err != nil {
				config.LogError(h.logger, "dashboard", "ExportYouTubeUsers", objectName, nil, err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
				return
			}
			body := gin.H{"success": true, "total_users": len(all), "url": url}
			// Without a signer the gs:// url is still returned.
			if signed, err := utils.SignDownload(ctx, objectName, exportLinkTTL); err != nil {
				config.LogWarn(h.logger, "dashboard", "ExportYouTubeUsers", objectName, err)
			} else {
				body["download"] = signed
			}
			c.JSON(http.StatusOK, body)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="youtube-users.xlsx"`)
		c.Data(http.StatusOK, utils.ContentTypeXLSX, data)
	}
}
