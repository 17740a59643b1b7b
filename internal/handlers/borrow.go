package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"libraryhub/internal/auth"
	"libraryhub/internal/models"
	"libraryhub/internal/services"
)

type BorrowHandler struct {
	svc services.BorrowService
}

// createBorrowRequest accepts the book id as book_id or bookId.
type createBorrowRequest struct {
	BookID      string `json:"book_id"`
	BookIDCamel string `json:"bookId"`
}

func (r createBorrowRequest) bookID() string {
	if r.BookID != "" {
		return r.BookID
	}
	return r.BookIDCamel
}

func (h *BorrowHandler) createRequest(c *gin.Context) {
	var req createBorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.bookID() == "" {
		badRequest(c, "book_id is required")
		return
	}
	bookID, err := uuid.Parse(req.bookID())
	if err != nil {
		badRequest(c, "invalid book_id")
		return
	}

	created, err := h.svc.CreateRequest(c.Request.Context(), auth.GetUserID(c), bookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Borrow request submitted",
		"request": created,
	})
}

func (h *BorrowHandler) listRequests(c *gin.Context) {
	var filter services.RequestFilter
	if s := c.Query("status"); s != "" {
		status, err := models.ParseBorrowStatus(s)
		if err != nil {
			badRequest(c, "%s", err.Error())
			return
		}
		filter.Status = status
	}
	for param, dst := range map[string]*uuid.UUID{"user_id": &filter.UserID, "book_id": &filter.BookID} {
		if s := c.Query(param); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				badRequest(c, "invalid %s", param)
				return
			}
			*dst = id
		}
	}

	views, err := h.svc.ListRequests(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *BorrowHandler) updateStatus(c *gin.Context) {
	requestID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	target, err := models.ParseBorrowStatus(req.Status)
	if err != nil {
		badRequest(c, "%s", err.Error())
		return
	}

	updated, err := h.svc.UpdateStatus(c.Request.Context(), requestID, target)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Request " + string(target),
		"request": updated,
	})
}

func (h *BorrowHandler) history(c *gin.Context) {
	views, err := h.svc.History(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *BorrowHandler) stats(c *gin.Context) {
	summary, err := h.svc.OverdueSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
