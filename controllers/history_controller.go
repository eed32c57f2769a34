package controllers

import (
	"haven/services"
	"haven/utils"

	"github.com/gin-gonic/gin"
)

type HistoryController struct {
	historyService *services.HistoryService
}

func NewHistoryController(historyService *services.HistoryService) *HistoryController {
	return &HistoryController{historyService: historyService}
}

// GetHistory lists finished sessions, newest first.
// @Summary Get session history
// @Tags History
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse{data=[]models.SessionRecord}
// @Router /history [get]
func (hc *HistoryController) GetHistory(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	records, err := hc.historyService.List(c.Request.Context(), scope)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "History retrieved", records)
}

// GetSummary counts sessions by outcome.
// @Summary Get history summary
// @Tags History
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.APIResponse{data=models.HistorySummary}
// @Router /history/summary [get]
func (hc *HistoryController) GetSummary(c *gin.Context) {
	scope, ok := requireScope(c)
	if !ok {
		return
	}

	summary, err := hc.historyService.Summary(c.Request.Context(), scope)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, "History summary retrieved", summary)
}
