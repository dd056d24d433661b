package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"audience/internal/core/apperror"
	appctx "audience/internal/core/context"
	"audience/internal/domain/auth"
	"audience/internal/domain/importer"
	"audience/internal/domain/profile"
	"audience/internal/infrastructure/http/v1/dto"
)

// Importer is the part of importer.Service the handler uses.
type Importer interface {
	Import(ctx context.Context, file io.Reader, opts importer.Options) (*importer.Result, error)
}

// ImportHandler serves POST /profiles/import.
type ImportHandler struct {
	*BaseHandler
	service     Importer
	maxFileSize int64
}

// NewImportHandler creates the handler. maxFileSize bounds the request body in bytes.
func NewImportHandler(base *BaseHandler, service Importer, maxFileSize int64) *ImportHandler {
	return &ImportHandler{BaseHandler: base, service: service, maxFileSize: maxFileSize}
}

// Import accepts a multipart upload with a "file" part and optional form
// fields format, tag, createSegment, segmentName and defaultStatus.
func (h *ImportHandler) Import(c *gin.Context) {
	if h.maxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, apperror.NewImportRejected(fmt.Sprintf("file is larger than %d bytes", h.maxFileSize)))
			return
		}
		h.Error(c, apperror.NewValidation("multipart field \"file\" is required").WithDetail("error", err.Error()))
		return
	}

	var form dto.ImportForm
	if !h.BindForm(c, &form) {
		return
	}

	opts := importer.Options{
		Tag:           form.Tag,
		CreateSegment: form.CreateSegment,
		SegmentName:   form.SegmentName,
		DefaultStatus: profile.Status(form.DefaultStatus),
	}
	if form.Format != "" {
		opts.Format, err = importer.ParseFormat(form.Format)
	} else {
		opts.Format, err = importer.FormatFromFilename(header.Filename)
	}
	if err != nil {
		h.Error(c, err)
		return
	}

	if opts.CreateSegment && !appctx.GetUser(c.Request.Context()).HasPermission(auth.PermSegmentWrite) {
		h.Error(c, apperror.NewForbidden("insufficient permissions").
			WithDetail("required_permission", auth.PermSegmentWrite))
		return
	}

	file, err := header.Open()
	if err != nil {
		h.Error(c, apperror.NewImportRejected("file could not be read").WithCause(err))
		return
	}
	defer file.Close()

	res, err := h.service.Import(c.Request.Context(), file, opts)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
