package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"github.com/open-onethingcloud/tc-contracts/internal/errs"
	"github.com/open-onethingcloud/tc-contracts/internal/models"
	"github.com/open-onethingcloud/tc-contracts/internal/services"
)

// CallerHeader carries the address the request acts as.
const CallerHeader = "X-Caller-Address"

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service *services.LotteryService
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.LotteryService) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

	router.POST("/admins", h.GrantRole)
	router.GET("/admins/:address", h.GetRoles)
	router.GET("/admins/:address/roles/:role", h.HasRole)
	router.DELETE("/admins/:address/roles/:role", h.RevokeRole)

	router.POST("/lotteries", h.CreateLottery)
	router.GET("/lotteries", h.GetLotteriesLength)
	router.GET("/lotteries/:id", h.GetLottery)
	router.POST("/lotteries/:id/prizes", h.AddPrize)
	router.POST("/lotteries/:id/prizes/csv", h.UploadPrizesCSV)
	router.GET("/lotteries/:id/prizes/:index", h.GetPrizeInfo)
	router.GET("/lotteries/:id/partition", h.GetPartition)
	router.POST("/lotteries/:id/start", h.StartLottery)
	router.POST("/lotteries/:id/close", h.CloseLottery)
	router.POST("/lotteries/:id/draw", h.UserDraw)
	router.GET("/lotteries/:id/draws", h.ListDraws)
	router.GET("/lotteries/:id/draws/csv", h.ExportDrawsCSV)

	router.GET("/events", h.StreamEvents)
}

type grantRoleRequest struct {
	Address string `json:"address" binding:"required"`
	Role    string `json:"role" binding:"required"`
}

type createLotteryRequest struct {
	Name string `json:"name" binding:"required"`
}

type addPrizeRequest struct {
	Name            string `json:"name" binding:"required"`
	Amount          int64  `json:"amount"`
	ProbDenominator int64  `json:"probDenominator"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// GrantRole handles POST /admins.
func (h *HTTPHandler) GrantRole(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req grantRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "", err.Error())
		return
	}
	target, ok := h.address(c, "address", req.Address)
	if !ok {
		return
	}
	role, ok := h.role(c, req.Role)
	if !ok {
		return
	}
	if err := h.service.GrantRole(c.Request.Context(), caller, target, role); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RevokeRole handles DELETE /admins/:address/roles/:role.
func (h *HTTPHandler) RevokeRole(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	target, ok := h.address(c, "address", c.Param("address"))
	if !ok {
		return
	}
	role, ok := h.role(c, c.Param("role"))
	if !ok {
		return
	}
	if err := h.service.RevokeRole(c.Request.Context(), caller, target, role); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HasRole handles GET /admins/:address/roles/:role.
func (h *HTTPHandler) HasRole(c *gin.Context) {
	addr, ok := h.address(c, "address", c.Param("address"))
	if !ok {
		return
	}
	role, ok := h.role(c, c.Param("role"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"hasRole": h.service.HasRole(addr, role)})
}

// GetRoles handles GET /admins/:address.
func (h *HTTPHandler) GetRoles(c *gin.Context) {
	addr, ok := h.address(c, "address", c.Param("address"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": addr,
		"owner":   addr == h.service.Owner(),
		"roles":   h.service.Roles(addr),
	})
}

// CreateLottery handles POST /lotteries.
func (h *HTTPHandler) CreateLottery(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req createLotteryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "name", err.Error())
		return
	}
	id, err := h.service.CreateLottery(c.Request.Context(), caller, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lotteryId": id})
}

// GetLotteriesLength handles GET /lotteries.
func (h *HTTPHandler) GetLotteriesLength(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"length": h.service.LotteriesLength()})
}

// GetLottery handles GET /lotteries/:id.
func (h *HTTPHandler) GetLottery(c *gin.Context) {
	id, ok := h.lotteryID(c)
	if !ok {
		return
	}
	lottery, err := h.service.Lottery(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lottery)
}

// AddPrize handles POST /lotteries/:id/prizes.
func (h *HTTPHandler) AddPrize(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.lotteryID(c)
	if !ok {
		return
	}
	var req addPrizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "", err.Error())
		return
	}
	if err := h.service.AddLotteryPrize(c.Request.Context(), caller, id, req.Name, req.Amount, req.ProbDenominator); err != nil {
		h.fail(c, err)
		return
	}
	h.respondLottery(c, http.StatusCreated, id)
}

// UploadPrizesCSV handles the CSV upload for prizes.
// Each row is name,amount,probDenominator; a leading header row is skipped.
// Every row must be valid or nothing is added.
func (h *HTTPHandler) UploadPrizesCSV(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.lotteryID(c)
	if !ok {
		return
	}
	file, _, err := c.Request.FormFile("prizeCSV")
	if err != nil {
		h.badRequest(c, "prizeCSV", fmt.Sprintf("Error retrieving file: %v", err))
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var specs []services.PrizeSpec
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.badRequest(c, "prizeCSV", fmt.Sprintf("Error reading CSV: %v", err))
			return
		}
		if row == 1 && strings.EqualFold(strings.TrimPrefix(record[0], "\ufeff"), "name") {
			continue
		}

		amount, err := strconv.ParseInt(record[1], 10, 64)
		if err != nil {
			h.badRequest(c, fmt.Sprintf("row %d amount", row), "invalid amount")
			return
		}
		denom, err := strconv.ParseInt(record[2], 10, 64)
		if err != nil {
			h.badRequest(c, fmt.Sprintf("row %d probDenominator", row), "invalid probability denominator")
			return
		}
		specs = append(specs, services.PrizeSpec{Name: record[0], Amount: amount, ProbDenominator: denom})
	}

	if err := h.service.AddLotteryPrizes(c.Request.Context(), caller, id, specs); err != nil {
		h.fail(c, err)
		return
	}
	logger.Infof("Imported %d prizes into lottery %d from CSV", len(specs), id)
	h.respondLottery(c, http.StatusCreated, id)
}

// GetPrizeInfo handles GET /lotteries/:id/prizes/:index.
func (h *HTTPHandler) GetPrizeInfo(c *gin.Context) {
	id, ok := h.lotteryID(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.badRequest(c, "index", "invalid prize index")
		return
	}
	prize, err := h.service.LotteryPrizeInfo(id, index)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, prize)
}

// GetPartition handles GET /lotteries/:id/partition.
func (h *HTTPHandler) GetPartition(c *gin.Context) {
	id, ok := h.lotteryID(c)
	if !ok {
		return
	}
	partition, err := h.service.Partition(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"space": partition.Space, "allocated": partition.Allocated(), "slices": partition.Slices})
}

// StartLottery handles POST /lotteries/:id/start.
func (h *HTTPHandler) StartLottery(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.lotteryID(c)
	if !ok {
		return
	}
	if err := h.service.StartLottery(c.Request.Context(), caller, id); err != nil {
		h.fail(c, err)
		return
	}
	h.respondLottery(c, http.StatusOK, id)
}

// CloseLottery handles POST /lotteries/:id/close.
func (h *HTTPHandler) CloseLottery(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.lotteryID(c)
	if !ok {
		return
	}
	if err := h.service.CloseLottery(c.Request.Context(), caller, id); err != nil {
		h.fail(c, err)
		return
	}
	h.respondLottery(c, http.StatusOK, id)
}

// UserDraw handles POST /lotteries/:id/draw.
func (h *HTTPHandler) UserDraw(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.lotteryID(c)
	if !ok {
		return
	}
	rec, err := h.service.UserDraw(c.Request.Context(), caller, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListDraws handles GET /lotteries/:id/draws.
func (h *HTTPHandler) ListDraws(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.lotteryID(c)
	if !ok {
		return
	}
	draws, err := h.service.Draws(c.Request.Context(), caller, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if draws == nil {
		draws = []models.DrawRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"draws": draws})
}

// ExportDrawsCSV handles the request to download a lottery's draw log as a CSV file.
func (h *HTTPHandler) ExportDrawsCSV(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.lotteryID(c)
	if !ok {
		return
	}
	draws, err := h.service.Draws(c.Request.Context(), caller, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	lottery, err := h.service.Lottery(id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment;filename=lottery_%d_draws.csv", id))

	// Add BOM to ensure UTF-8 compatibility in Excel
	c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{"sequence", "drawer", "commit_hash", "random_value", "prize_index", "prize_name", "created_at"}); err != nil {
		logger.Infof("Error writing CSV header: %v", err)
		return
	}
	for _, d := range draws {
		prizeName := ""
		if d.Won() && d.PrizeIndex < len(lottery.Prizes) {
			prizeName = lottery.Prizes[d.PrizeIndex].Name
		}
		row := []string{
			strconv.FormatUint(d.Sequence, 10),
			d.Drawer.Hex(),
			d.CommitHash.Hex(),
			strconv.FormatUint(d.RandomValue, 10),
			strconv.Itoa(d.PrizeIndex),
			prizeName,
			d.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		}
		if err := w.Write(row); err != nil {
			logger.Infof("Error writing CSV row: %v", err)
			return
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		logger.Infof("Error flushing CSV writer: %v", err)
	}
}

// StreamEvents handles GET /events as a server-sent event stream of draw and
// prize events. ?lottery=<id> limits the stream to one lottery.
func (h *HTTPHandler) StreamEvents(c *gin.Context) {
	var (
		only     uint64
		filtered bool
	)
	if v := c.Query("lottery"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			h.badRequest(c, "lottery", "invalid lottery id")
			return
		}
		only, filtered = id, true
	}

	drawCh := make(chan models.DrawInfoEvent, 16)
	prizeCh := make(chan models.PrizeInfoEvent, 16)
	drawSub := h.service.SubscribeDrawInfo(drawCh)
	defer drawSub.Unsubscribe()
	prizeSub := h.service.SubscribePrizeInfo(prizeCh)
	defer prizeSub.Unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-drawCh:
			if !filtered || ev.LotteryID == only {
				c.SSEvent("draw", ev)
			}
			return true
		case ev := <-prizeCh:
			if !filtered || ev.LotteryID == only {
				c.SSEvent("prize", ev)
			}
			return true
		case <-drawSub.Err():
			return false
		case <-prizeSub.Err():
			return false
		case <-ctx.Done():
			return false
		}
	})
}

func (h *HTTPHandler) respondLottery(c *gin.Context, status int, id uint64) {
	lottery, err := h.service.Lottery(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, lottery)
}

// caller reads the acting address from CallerHeader.
func (h *HTTPHandler) caller(c *gin.Context) (common.Address, bool) {
	return h.address(c, "caller", c.GetHeader(CallerHeader))
}

func (h *HTTPHandler) address(c *gin.Context, field, value string) (common.Address, bool) {
	if !common.IsHexAddress(value) {
		h.badRequest(c, field, fmt.Sprintf("%q is not a hex address", value))
		return common.Address{}, false
	}
	return common.HexToAddress(value), true
}

func (h *HTTPHandler) role(c *gin.Context, value string) (models.Role, bool) {
	role, err := models.ParseRole(value)
	if err != nil {
		h.fail(c, errs.Wrap(errs.InvalidConfiguration, "role", err.Error(), err))
		return "", false
	}
	return role, true
}

func (h *HTTPHandler) lotteryID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.badRequest(c, "id", "invalid lottery id")
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) badRequest(c *gin.Context, field, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Error:   string(errs.InvalidConfiguration),
		Field:   field,
		Message: message,
	})
}

// fail writes err with the status code of its kind.
func (h *HTTPHandler) fail(c *gin.Context, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		logger.Errorf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
			Error:   "Internal",
			Message: "internal error",
		})
		return
	}
	c.AbortWithStatusJSON(statusOf(e.Kind), errorResponse{
		Error:   string(e.Kind),
		Field:   e.Field,
		Message: e.Message,
	})
}

func statusOf(kind errs.Kind) int {
	switch kind {
	case errs.PermissionDenied:
		return http.StatusForbidden
	case errs.NotFound:
		return http.StatusNotFound
	case errs.InvalidState:
		return http.StatusConflict
	case errs.InvalidConfiguration:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
