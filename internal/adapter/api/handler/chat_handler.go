package handler

import (
	"github.com/labstack/echo/v4"

	"posttrr/internal/usecase"
	"posttrr/pkg/response"
	"posttrr/pkg/utils"
)

const (
	defaultThreadPageSize  = 20
	defaultMessagePageSize = 30
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type openThreadRequest struct {
	ListingID string `json:"listingId" validate:"required"`
}

type postMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// OpenThread finds or creates the caller's conversation about a listing
func (h *ChatHandler) OpenThread(c echo.Context) error {
	var req openThreadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	thread, err := h.chatUseCase.OpenThread(c.Request().Context(), userID, req.ListingID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, thread)
}

// ListThreads lists the caller's threads, optionally only one side via ?role=buyer|seller
func (h *ChatHandler) ListThreads(c echo.Context) error {
	userID := c.Get("uid").(string)
	pagination := utils.GetPaginationParams(c, defaultThreadPageSize)

	threads, total, err := h.chatUseCase.ListThreads(
		c.Request().Context(),
		userID,
		c.QueryParam("role"),
		pagination.PageSize,
		pagination.Offset,
	)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, threads, total, pagination.Page, pagination.PageSize)
}

func (h *ChatHandler) GetThread(c echo.Context) error {
	userID := c.Get("uid").(string)

	thread, err := h.chatUseCase.GetThread(c.Request().Context(), userID, c.Param("threadId"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, thread)
}

func (h *ChatHandler) UnreadSummary(c echo.Context) error {
	userID := c.Get("uid").(string)

	summary, err := h.chatUseCase.UnreadSummary(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, summary)
}

// ListMessages returns one page of messages, newest first. Page 2 holds older messages.
func (h *ChatHandler) ListMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	pagination := utils.GetPaginationParams(c, defaultMessagePageSize)

	messages, total, err := h.chatUseCase.ListMessages(
		c.Request().Context(),
		c.Param("threadId"),
		userID,
		pagination.PageSize,
		pagination.Offset,
	)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, messages, total, pagination.Page, pagination.PageSize)
}

func (h *ChatHandler) PostMessage(c echo.Context) error {
	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	message, err := h.chatUseCase.PostMessage(c.Request().Context(), c.Param("threadId"), userID, req.Text)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, message)
}

func (h *ChatHandler) MarkThreadRead(c echo.Context) error {
	userID := c.Get("uid").(string)

	thread, err := h.chatUseCase.MarkThreadRead(c.Request().Context(), c.Param("threadId"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, thread)
}
