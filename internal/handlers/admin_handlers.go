package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"tombola/internal/metrics"
	"tombola/internal/models"
	"tombola/internal/services"
)

func (h *HTTPHandler) registerAdminRoutes(g *gin.RouterGroup) {
	g.POST("/logout", h.Logout)
	g.GET("/me", h.Me)
	g.GET("/tickets", h.GetAdminTickets)
	g.DELETE("/tickets", h.ClearTickets)
	g.POST("/test-tickets", h.GenerateTestTickets)
	g.GET("/participants", h.GetParticipants)
	g.GET("/participants/:number", h.GetParticipantDetails)
	g.GET("/export-participants-csv", h.ExportParticipantsCSV)
	g.GET("/draws", h.GetDrawResults)
	g.POST("/draws", h.PerformDraw)
	g.GET("/protection", h.GetProtectionStatus)
	g.POST("/protection/migrate", h.MigrateProtection)
	g.POST("/prizes", h.AddPrize)
	g.POST("/prizes/samples", h.AddSamplePrizes)
	g.PUT("/prizes/order", h.ReorderPrizes)
	g.PATCH("/prizes/:id", h.UpdatePrize)
	g.DELETE("/prizes/:id", h.DeletePrize)
	g.GET("/activities", h.GetActivities)
	g.GET("/config", h.GetConfig)
	g.PUT("/config", h.SaveConfig)
	g.PUT("/security-code", h.UpdateSecurityCode)
}

func intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid %s", name))
		return 0, false
	}
	return n, true
}

// Logout closes the admin session.
func (h *HTTPHandler) Logout(c *gin.Context) {
	h.admin.LogActivity("logout", nil)
	if err := h.admin.Logout(); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the session user.
func (h *HTTPHandler) Me(c *gin.Context) {
	user, _ := h.admin.CurrentUser()
	c.JSON(http.StatusOK, gin.H{"user": user, "sessionDuration": h.admin.SessionDuration()})
}

// GetAdminTickets lists tickets with decrypted identities.
func (h *HTTPHandler) GetAdminTickets(c *gin.Context) {
	c.JSON(http.StatusOK, h.tickets.GetTicketsWithAccess(c.Request.Context(), models.AccessAdmin))
}

// ClearTickets wipes the ledger.
func (h *HTTPHandler) ClearTickets(c *gin.Context) {
	if err := h.tickets.ClearAllTickets(); err != nil {
		fail(c, err)
		return
	}
	h.admin.LogActivity("clear_tickets", nil)
	c.Status(http.StatusNoContent)
}

type countRequest struct {
	Count int `json:"count"`
}

// GenerateTestTickets appends synthetic tickets.
func (h *HTTPHandler) GenerateTestTickets(c *gin.Context) {
	req := countRequest{Count: 10}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
	}

	generated, err := h.tickets.GenerateTestTickets(req.Count)
	if err != nil {
		fail(c, err)
		return
	}
	metrics.RecordTicketAdded(models.SourceTestGeneration, len(generated))
	h.admin.LogActivity("generate_test_tickets", map[string]any{"count": len(generated)})
	c.JSON(http.StatusCreated, generated)
}

// GetParticipants returns the deduplicated participants and the tickets
// that were left out. ?excludeTest=true drops generated tickets.
func (h *HTTPHandler) GetParticipants(c *gin.Context) {
	exclude, _ := strconv.ParseBool(c.Query("excludeTest"))
	report := h.tickets.GetParticipantReport(services.ReportOptions{ExcludeTestData: exclude})
	for _, s := range report.Skipped {
		metrics.RecordSkippedTicket(s.Reason)
	}
	c.JSON(http.StatusOK, report)
}

// GetParticipantDetails returns the participant behind a ticket number.
func (h *HTTPHandler) GetParticipantDetails(c *gin.Context) {
	number, ok := intParam(c, "number")
	if !ok {
		return
	}
	details, found := h.tickets.GetParticipantDetails(number)
	if !found {
		errorJSON(c, http.StatusNotFound, fmt.Errorf("no participant for ticket %d", number))
		return
	}
	h.admin.LogActivity("view_participant", map[string]any{"ticketNumber": number})
	c.JSON(http.StatusOK, details)
}

// ExportParticipantsCSV downloads the participants as a CSV file.
func (h *HTTPHandler) ExportParticipantsCSV(c *gin.Context) {
	participants := h.tickets.GetAllParticipants()

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment;filename=participants_tombola.csv")

	// BOM so spreadsheet tools read UTF-8
	c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)
	header := []string{"Nom", "Email", "Téléphone", "Tickets", "Numéros", "Total dépensé", "Premier achat", "Dernier achat", "Source"}
	if err := w.Write(header); err != nil {
		logger.Errorf("Error writing CSV header: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
		return
	}

	for _, p := range participants {
		numbers := make([]string, len(p.TicketNumbers))
		for i, n := range p.TicketNumbers {
			numbers[i] = strconv.Itoa(n)
		}
		row := []string{
			p.Name,
			p.Email,
			p.Phone,
			strconv.Itoa(p.Tickets),
			strings.Join(numbers, " "),
			strconv.FormatFloat(p.TotalSpent, 'f', 2, 64),
			p.FirstPurchase.Format(time.RFC3339),
			p.LastPurchase.Format(time.RFC3339),
			p.Source,
		}
		if err := w.Write(row); err != nil {
			logger.Errorf("Error writing CSV row: %v", err)
			return
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		logger.Errorf("Error flushing CSV writer: %v", err)
		return
	}
	h.admin.LogActivity("export_participants", map[string]any{"count": len(participants)})
}

// GetDrawResults lists the draws made since start.
func (h *HTTPHandler) GetDrawResults(c *gin.Context) {
	c.JSON(http.StatusOK, h.draws.Results())
}

type drawRequest struct {
	PrizeID int `json:"prizeId" binding:"required"`
}

// PerformDraw draws the winner of one prize.
func (h *HTTPHandler) PerformDraw(c *gin.Context) {
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	result, err := h.draws.Draw(req.PrizeID)
	if err != nil {
		fail(c, err)
		return
	}
	h.admin.LogActivity("draw", map[string]any{"prizeId": result.PrizeID, "ticketNumber": result.TicketNumber})
	c.JSON(http.StatusOK, result)
}

// GetProtectionStatus reports encryption health and coverage.
func (h *HTTPHandler) GetProtectionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.tickets.ProtectionStatus())
}

// MigrateProtection seals identities still stored in clear.
func (h *HTTPHandler) MigrateProtection(c *gin.Context) {
	n, err := h.tickets.MigrateToProtected()
	if err != nil {
		fail(c, err)
		return
	}
	h.admin.LogActivity("migrate_protection", map[string]any{"migrated": n})
	c.JSON(http.StatusOK, gin.H{"migrated": n})
}

// AddPrize appends a prize to the catalog.
func (h *HTTPHandler) AddPrize(c *gin.Context) {
	var p models.Prize
	if err := c.ShouldBindJSON(&p); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	added, err := h.prizes.Add(p)
	if err != nil {
		fail(c, err)
		return
	}
	h.admin.LogActivity("add_prize", map[string]any{"prizeId": added.ID})
	c.JSON(http.StatusCreated, added)
}

// AddSamplePrizes fills the free slots with sample prizes.
func (h *HTTPHandler) AddSamplePrizes(c *gin.Context) {
	added, err := h.prizes.AddSamples()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, added)
}

// UpdatePrize applies a partial update.
func (h *HTTPHandler) UpdatePrize(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var patch models.PrizePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	p, err := h.prizes.Update(id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeletePrize removes a prize.
func (h *HTTPHandler) DeletePrize(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := h.prizes.Delete(id); err != nil {
		fail(c, err)
		return
	}
	h.admin.LogActivity("delete_prize", map[string]any{"prizeId": id})
	c.Status(http.StatusNoContent)
}

type reorderRequest struct {
	IDs []int `json:"ids" binding:"required"`
}

// ReorderPrizes sets the display order.
func (h *HTTPHandler) ReorderPrizes(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if err := h.prizes.Reorder(req.IDs); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.prizes.List())
}

// GetActivities returns the journal, newest first. ?limit defaults to 10.
func (h *HTTPHandler) GetActivities(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 0 {
		errorJSON(c, http.StatusBadRequest, errors.New("invalid limit"))
		return
	}
	c.JSON(http.StatusOK, h.admin.RecentActivities(limit))
}

// GetConfig returns the admin configuration blob.
func (h *HTTPHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.admin.LoadConfig())
}

// SaveConfig replaces the admin configuration blob.
func (h *HTTPHandler) SaveConfig(c *gin.Context) {
	var cfg map[string]any
	if err := c.ShouldBindJSON(&cfg); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if err := h.admin.SaveConfig(cfg); err != nil {
		fail(c, err)
		return
	}
	h.admin.LogActivity("save_config", nil)
	c.JSON(http.StatusOK, cfg)
}

type securityCodeRequest struct {
	SecurityCode string `json:"securityCode" binding:"required"`
}

// UpdateSecurityCode changes the code required at login.
func (h *HTTPHandler) UpdateSecurityCode(c *gin.Context) {
	var req securityCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if _, err := h.admin.UpdateSecurityCode(req.SecurityCode); err != nil {
		fail(c, err)
		return
	}
	h.admin.LogActivity("update_security_code", nil)
	c.JSON(http.StatusOK, gin.H{"updated": true})
}
