package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"libraryhub/internal/services"
)

type CatalogHandler struct {
	svc services.CatalogService
}

type createBookRequest struct {
	Title     string `json:"title" binding:"required"`
	Author    string `json:"author" binding:"required"`
	ISBN      string `json:"isbn" binding:"required"`
	Publisher string `json:"publisher"`
	Year      int    `json:"year"`
	Copies    int    `json:"copies" binding:"required,min=1"`
	Category  string `json:"category"`
	Image     string `json:"image"`
}

func (h *CatalogHandler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%s", err.Error())
		return
	}

	book, err := h.svc.CreateBook(c.Request.Context(), services.BookInput(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Physical book added", "book": book})
}

type addCopiesRequest struct {
	Count int `json:"count" binding:"required,min=1"`
}

func (h *CatalogHandler) addCopies(c *gin.Context) {
	bookID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req addCopiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "count must be a positive integer")
		return
	}

	book, err := h.svc.AddCopies(c.Request.Context(), bookID, req.Count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *CatalogHandler) getBook(c *gin.Context) {
	bookID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	book, err := h.svc.GetBook(c.Request.Context(), bookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *CatalogHandler) listBooks(c *gin.Context) {
	books, err := h.svc.ListBooks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *CatalogHandler) deleteBook(c *gin.Context) {
	if err := h.svc.DeleteBook(c.Request.Context(), c.Param("isbn")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Physical book deleted"})
}

type createEbookRequest struct {
	Title     string `json:"title" binding:"required"`
	Author    string `json:"author" binding:"required"`
	ISBN      string `json:"isbn" binding:"required"`
	Publisher string `json:"publisher"`
	Year      int    `json:"year"`
	Category  string `json:"category"`
	Image     string `json:"image"`
	PDF       string `json:"pdf" binding:"required"`
}

func (h *CatalogHandler) createEbook(c *gin.Context) {
	var req createEbookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%s", err.Error())
		return
	}

	ebook, err := h.svc.CreateEbook(c.Request.Context(), services.EbookInput(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ebook)
}

func (h *CatalogHandler) listEbooks(c *gin.Context) {
	ebooks, err := h.svc.ListEbooks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ebooks)
}

func (h *CatalogHandler) deleteEbook(c *gin.Context) {
	if err := h.svc.DeleteEbook(c.Request.Context(), c.Param("isbn")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ebook deleted"})
}
