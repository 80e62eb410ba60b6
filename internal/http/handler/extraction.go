package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"clinichire.app/scout/internal/extract"
	"clinichire.app/scout/internal/http/dto"
	"clinichire.app/scout/internal/service"
)

type ExtractionHandler struct {
	extractionService service.ExtractionService
}

func NewExtractionHandler(extractionService service.ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{extractionService: extractionService}
}

// Extract handles POST /extract with the schema in the body.
func (h *ExtractionHandler) Extract(c *gin.Context) {
	req, ok := bindExtractRequest(c)
	if !ok {
		return
	}

	schema, err := extract.ParseSchemaKind(req.Schema)
	if err != nil {
		status, body := dto.FromError(err)
		c.JSON(status, body)
		return
	}

	h.run(c, req.URL, schema)
}

// ExtractPosition handles POST /positions/extract.
func (h *ExtractionHandler) ExtractPosition(c *gin.Context) {
	h.extractFor(c, extract.SchemaPosition)
}

// ExtractCompetitor handles POST /competitors/extract.
func (h *ExtractionHandler) ExtractCompetitor(c *gin.Context) {
	h.extractFor(c, extract.SchemaCompetitor)
}

func (h *ExtractionHandler) extractFor(c *gin.Context, schema extract.SchemaKind) {
	req, ok := bindExtractRequest(c)
	if !ok {
		return
	}

	h.run(c, req.URL, schema)
}

// bindExtractRequest rejects bodies that fail the DTO's binding rules. A
// missing or oversized url is reported as InvalidUrl like any other bad url.
func bindExtractRequest(c *gin.Context) (dto.ExtractRequest, bool) {
	var req dto.ExtractRequest
	err := c.ShouldBindJSON(&req)
	if err == nil {
		return req, true
	}

	slog.WarnContext(c.Request.Context(), "invalid request body", "error", err)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: fmt.Sprintf("url is required and must be at most %d characters", dto.MaxURLLength),
			Kind:  string(extract.KindInvalidURL),
		})
		return req, false
	}
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	return req, false
}

func (h *ExtractionHandler) run(c *gin.Context, rawURL string, schema extract.SchemaKind) {
	ctx := c.Request.Context()

	res, err := h.extractionService.Extract(ctx, rawURL, schema)
	if err != nil {
		status, body := dto.FromError(err)
		if _, ok := extract.KindOf(err); !ok {
			slog.ErrorContext(ctx, "unclassified extraction error", "error", err)
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, dto.FromResult(res))
}

// Schema handles GET /extract/schemas/:schema for form builders.
func (h *ExtractionHandler) Schema(c *gin.Context) {
	kind, err := extract.ParseSchemaKind(c.Param("schema"))
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "unknown schema"})
		return
	}

	schema, err := h.extractionService.Schema(kind)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "unknown schema"})
		return
	}

	c.JSON(http.StatusOK, dto.SchemaResponse{
		Schema:     string(schema.Kind),
		Version:    schema.Version,
		MaxChars:   schema.MaxChars,
		JSONSchema: schema.JSONSchema(),
	})
}
