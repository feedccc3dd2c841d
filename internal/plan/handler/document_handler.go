package handler

import (
	"strconv"

	"github.com/civicteam/plancompras/internal/plan/service"
	"github.com/gin-gonic/gin"
)

// DocumentHandler serves decree and F1 uploads, detachment and downloads.
type DocumentHandler struct {
	docSvc *service.DocumentService
}

func NewDocumentHandler(docSvc *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docSvc: docSvc}
}

// AttachDecree POST /api/v1/plans/:id/decree
// Multipart form: file (required), number (decree number).
func (h *DocumentHandler) AttachDecree(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		BadRequest(c, "cannot read file")
		return
	}
	defer file.Close()

	upload := &service.DocumentUpload{
		FileName: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Reader:   file,
		Number:   c.PostForm("number"),
	}

	decree, err := h.docSvc.AttachDecree(c.Request.Context(), c.Param("id"), GetActor(c), upload)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, decree)
}

// DetachDecree DELETE /api/v1/plans/:id/decree
func (h *DocumentHandler) DetachDecree(c *gin.Context) {
	reason := c.Query("reason")
	if err := h.docSvc.DetachDecree(c.Request.Context(), c.Param("id"), GetActor(c), reason); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// DownloadDecree GET /api/v1/plans/:id/decree/download
func (h *DocumentHandler) DownloadDecree(c *gin.Context) {
	url, err := h.docSvc.DecreeDownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"url": url})
}

// AttachF1 POST /api/v1/plans/:id/f1
// Multipart form: file (required), amount (declared budget amount).
func (h *DocumentHandler) AttachF1(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "file is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		BadRequest(c, "cannot read file")
		return
	}
	defer file.Close()

	amount, err := strconv.ParseFloat(c.PostForm("amount"), 64)
	if err != nil || amount < 0 {
		BadRequest(c, "amount must be a non-negative number")
		return
	}

	upload := &service.DocumentUpload{
		FileName: fileHeader.Filename,
		Size:     fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Reader:   file,
		Amount:   amount,
	}

	form, err := h.docSvc.AttachF1(c.Request.Context(), c.Param("id"), GetActor(c), upload)
	if err != nil {
		ServiceError(c, err)
		return
	}
	Created(c, form)
}

// DetachF1 DELETE /api/v1/plans/:id/f1
func (h *DocumentHandler) DetachF1(c *gin.Context) {
	if err := h.docSvc.DetachF1(c.Request.Context(), c.Param("id"), GetActor(c)); err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, nil)
}

// DownloadF1 GET /api/v1/plans/:id/f1/download
func (h *DocumentHandler) DownloadF1(c *gin.Context) {
	url, err := h.docSvc.F1DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		ServiceError(c, err)
		return
	}
	Success(c, gin.H{"url": url})
}
