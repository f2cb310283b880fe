package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/services/auth"
	"github.com/streamvault/streamvault/internal/services/cache"
	"github.com/streamvault/streamvault/internal/services/stream"
)

type StreamsHandler struct {
	streamService *stream.Service
	streamCache   *cache.StreamCache
	clock         stream.Clock
}

func NewStreamsHandler(streamService *stream.Service, streamCache *cache.StreamCache, clock stream.Clock) *StreamsHandler {
	if clock == nil {
		clock = stream.SystemClock{}
	}
	return &StreamsHandler{
		streamService: streamService,
		streamCache:   streamCache,
		clock:         clock,
	}
}

// CreateStreamRequest represents the request body for opening a stream
type CreateStreamRequest struct {
	Recipient      string        `json:"recipient"`
	Asset          string        `json:"asset"`
	Title          string        `json:"title"`
	Amount         int64         `json:"amount"`
	CliffAmount    int64         `json:"cliff_amount"`
	IsCliffPercent bool          `json:"is_cliff_percent"`
	StartTime      int64         `json:"start_time"`
	StartNow       bool          `json:"start_now"`
	Interval       int64         `json:"interval"`
	Rate           int64         `json:"rate"`
	Duration       int64         `json:"duration"`
	IsInfinite     bool          `json:"is_infinite"`
	CancelBy       models.Policy `json:"cancel_by"`
	PauseBy        models.Policy `json:"pause_by"`
	ResumeBy       models.Policy `json:"resume_by"`
	WithdrawBy     models.Policy `json:"withdraw_by"`
	EditBy         models.Policy `json:"edit_by"`
}

// StreamResponse is the wire form of a stream, including the amount a
// withdraw would release right now.
type StreamResponse struct {
	ID               string        `json:"id"`
	Title            string        `json:"title,omitempty"`
	Sender           string        `json:"sender"`
	Recipient        string        `json:"recipient"`
	Asset            string        `json:"asset"`
	EscrowAddress    string        `json:"escrow_address"`
	CreateTime       int64         `json:"create_time"`
	StartTime        int64         `json:"start_time"`
	StopTime         int64         `json:"stop_time"`
	Deposit          int64         `json:"deposit"`
	RemainingBalance int64         `json:"remaining_balance"`
	Withdrawn        int64         `json:"withdrawn"`
	Withdrawable     int64         `json:"withdrawable"`
	CliffAmount      int64         `json:"cliff_amount"`
	IsCliffPercent   bool          `json:"is_cliff_percent"`
	Interval         int64         `json:"interval"`
	Rate             int64         `json:"rate"`
	TimeLeft         int64         `json:"time_left,omitempty"`
	CancelBy         models.Policy `json:"cancel_by"`
	PauseBy          models.Policy `json:"pause_by"`
	ResumeBy         models.Policy `json:"resume_by"`
	WithdrawBy       models.Policy `json:"withdraw_by"`
	EditBy           models.Policy `json:"edit_by"`
	IsPaused         bool          `json:"is_paused"`
	IsCancelled      bool          `json:"is_cancelled"`
	IsInfinite       bool          `json:"is_infinite"`
}

func (h *StreamsHandler) streamResponse(st *models.Stream) StreamResponse {
	return StreamResponse{
		ID:               st.ID,
		Title:            st.Title,
		Sender:           st.Sender,
		Recipient:        st.Recipient,
		Asset:            st.Asset,
		EscrowAddress:    st.EscrowAddress,
		CreateTime:       st.CreateTime,
		StartTime:        st.StartTime,
		StopTime:         st.StopTime,
		Deposit:          st.Deposit,
		RemainingBalance: st.RemainingBalance,
		Withdrawn:        st.Withdrawn,
		Withdrawable:     stream.Withdrawable(st, h.clock.Now()),
		CliffAmount:      st.CliffAmount,
		IsCliffPercent:   st.IsCliffPercent,
		Interval:         st.Interval,
		Rate:             st.Rate,
		TimeLeft:         st.TimeLeft,
		CancelBy:         st.CancelBy,
		PauseBy:          st.PauseBy,
		ResumeBy:         st.ResumeBy,
		WithdrawBy:       st.WithdrawBy,
		EditBy:           st.EditBy,
		IsPaused:         st.IsPaused,
		IsCancelled:      st.IsCancelled,
		IsInfinite:       st.IsInfinite,
	}
}

// CreateStream opens a new payment stream funded by the authenticated caller
func (h *StreamsHandler) CreateStream(c *fiber.Ctx) error {
	caller, ok := auth.GetCallerAddress(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req CreateStreamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	st, err := h.streamService.Create(c.Context(), models.CreateStreamParams{
		Sender:         caller,
		Recipient:      req.Recipient,
		Asset:          req.Asset,
		Title:          req.Title,
		Amount:         req.Amount,
		CliffAmount:    req.CliffAmount,
		IsCliffPercent: req.IsCliffPercent,
		StartTime:      req.StartTime,
		StartNow:       req.StartNow,
		Interval:       req.Interval,
		Rate:           req.Rate,
		Duration:       req.Duration,
		IsInfinite:     req.IsInfinite,
		CancelBy:       req.CancelBy,
		PauseBy:        req.PauseBy,
		ResumeBy:       req.ResumeBy,
		WithdrawBy:     req.WithdrawBy,
		EditBy:         req.EditBy,
	})
	if err != nil {
		return respondError(c, err)
	}

	h.streamCache.Set(c.Context(), st)

	return c.Status(fiber.StatusCreated).JSON(h.streamResponse(st))
}

// GetStream returns the current state of a stream
func (h *StreamsHandler) GetStream(c *fiber.Ctx) error {
	streamID := c.Params("stream_id")
	if streamID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "stream_id is required",
		})
	}

	if st, ok := h.streamCache.Get(c.Context(), streamID); ok {
		return c.JSON(h.streamResponse(st))
	}

	st, err := h.streamService.Get(c.Context(), streamID)
	if err != nil {
		return respondError(c, err)
	}

	h.streamCache.Set(c.Context(), st)

	return c.JSON(h.streamResponse(st))
}

// WithdrawResponse reports a release of matured funds
type WithdrawResponse struct {
	Stream StreamResponse `json:"stream"`
	Amount int64          `json:"amount"`
}

// Withdraw releases matured funds to the recipient
func (h *StreamsHandler) Withdraw(c *fiber.Ctx) error {
	caller, ok := auth.GetCallerAddress(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	streamID := c.Params("stream_id")
	st, amount, err := h.streamService.Withdraw(c.Context(), streamID, caller)
	if err != nil {
		return respondError(c, err)
	}

	h.streamCache.Invalidate(c.Context(), streamID)

	return c.JSON(WithdrawResponse{
		Stream: h.streamResponse(st),
		Amount: amount,
	})
}

// PauseResponse reports a pause and the payout flushed by it
type PauseResponse struct {
	Stream StreamResponse `json:"stream"`
	Amount int64          `json:"amount"`
}

// Pause freezes the vesting schedule
func (h *StreamsHandler) Pause(c *fiber.Ctx) error {
	caller, ok := auth.GetCallerAddress(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	streamID := c.Params("stream_id")
	st, amount, err := h.streamService.Pause(c.Context(), streamID, caller)
	if err != nil {
		return respondError(c, err)
	}

	h.streamCache.Invalidate(c.Context(), streamID)

	return c.JSON(PauseResponse{
		Stream: h.streamResponse(st),
		Amount: amount,
	})
}

// Resume restarts a paused vesting schedule
func (h *StreamsHandler) Resume(c *fiber.Ctx) error {
	caller, ok := auth.GetCallerAddress(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	streamID := c.Params("stream_id")
	st, err := h.streamService.Resume(c.Context(), streamID, caller)
	if err != nil {
		return respondError(c, err)
	}

	h.streamCache.Invalidate(c.Context(), streamID)

	return c.JSON(h.streamResponse(st))
}

// CancelResponse reports the final settlement split
type CancelResponse struct {
	Stream         StreamResponse `json:"stream"`
	RecipientShare int64          `json:"recipient_share"`
	SenderShare    int64          `json:"sender_share"`
}

// Cancel terminates a stream and settles both parties
func (h *StreamsHandler) Cancel(c *fiber.Ctx) error {
	caller, ok := auth.GetCallerAddress(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	streamID := c.Params("stream_id")
	st, recipientShare, senderShare, err := h.streamService.Cancel(c.Context(), streamID, caller)
	if err != nil {
		return respondError(c, err)
	}

	h.streamCache.Invalidate(c.Context(), streamID)

	return c.JSON(CancelResponse{
		Stream:         h.streamResponse(st),
		RecipientShare: recipientShare,
		SenderShare:    senderShare,
	})
}

// ReloadRequest represents the request body for topping up a stream
type ReloadRequest struct {
	Amount int64 `json:"amount"`
}

// Reload tops up an infinite stream
func (h *StreamsHandler) Reload(c *fiber.Ctx) error {
	caller, ok := auth.GetCallerAddress(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req ReloadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	streamID := c.Params("stream_id")
	st, err := h.streamService.Reload(c.Context(), streamID, caller, req.Amount)
	if err != nil {
		return respondError(c, err)
	}

	h.streamCache.Invalidate(c.Context(), streamID)

	return c.JSON(h.streamResponse(st))
}

// CloseStream deletes a drained stream and reclaims its escrow account
func (h *StreamsHandler) CloseStream(c *fiber.Ctx) error {
	caller, ok := auth.GetCallerAddress(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	streamID := c.Params("stream_id")
	if err := h.streamService.Close(c.Context(), streamID, caller); err != nil {
		return respondError(c, err)
	}

	h.streamCache.Invalidate(c.Context(), streamID)

	return c.SendStatus(fiber.StatusNoContent)
}

// TransferItem represents a single custody movement
type TransferItem struct {
	ID           uint   `json:"id"`
	StreamID     string `json:"stream_id"`
	Asset        string `json:"asset"`
	FromAddress  string `json:"from_address"`
	ToAddress    string `json:"to_address"`
	Amount       int64  `json:"amount"`
	Kind         string `json:"kind"`
	BalanceAfter int64  `json:"balance_after"`
	CreatedAt    string `json:"created_at"`
}

// GetTransfersResponse wraps the custody history of a stream
type GetTransfersResponse struct {
	Transfers []TransferItem `json:"transfers"`
	Total     int            `json:"total"`
	Limit     int            `json:"limit"`
	Offset    int            `json:"offset"`
}

// GetTransfers returns the custody audit history for a stream
func (h *StreamsHandler) GetTransfers(c *fiber.Ctx) error {
	streamID := c.Params("stream_id")
	if streamID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "stream_id is required",
		})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	transfers, err := h.streamService.Transfers(c.Context(), streamID, limit, offset)
	if err != nil {
		return respondError(c, err)
	}

	items := make([]TransferItem, 0, len(transfers))
	for _, t := range transfers {
		items = append(items, TransferItem{
			ID:           t.ID,
			StreamID:     t.StreamID,
			Asset:        t.Asset,
			FromAddress:  t.FromAddress,
			ToAddress:    t.ToAddress,
			Amount:       t.Amount,
			Kind:         string(t.Kind),
			BalanceAfter: t.BalanceAfter,
			CreatedAt:    t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	return c.JSON(GetTransfersResponse{
		Transfers: items,
		Total:     len(items),
		Limit:     limit,
		Offset:    offset,
	})
}
