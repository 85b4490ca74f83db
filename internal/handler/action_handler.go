package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/internal/workflow"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
	"github.com/noah-isme/demandes-api/pkg/response"
)

// maxUploadBytes bounds multipart bodies on the sign action and signature upload.
const maxUploadBytes = 8 << 20

type workflowEngine interface {
	Execute(ctx context.Context, demandeID string, actor models.Actor, action workflow.Action, req models.ActionRequest, upload *models.SignatureUpload) (*models.TransitionResult, error)
}

// ActionHandler dispatches named lifecycle actions to the engine.
type ActionHandler struct {
	engine workflowEngine
}

// NewActionHandler constructs the handler.
func NewActionHandler(engine workflowEngine) *ActionHandler {
	return &ActionHandler{engine: engine}
}

// Execute godoc
// @Summary Apply a lifecycle action to a request
// @Description JSON body carries comment, assignee_id or reviewer_ids. The sign action also accepts
// @Description multipart/form-data with a "signature" file and a "comment" field.
// @Tags Workflow
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Request ID"
// @Param action path string true "Action name, e.g. validateField"
// @Param payload body models.ActionRequest false "Action inputs"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /demandes/{id}/actions/{action} [post]
func (h *ActionHandler) Execute(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	raw := c.Param("action")
	action, known := workflow.ParseAction(raw)
	if !known {
		// Unknown names still go through the engine so the denial is reported uniformly.
		action = workflow.Action(raw)
	}

	var (
		req    models.ActionRequest
		upload *models.SignatureUpload
		err    error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, upload, err = bindMultipartAction(c)
	} else {
		req, err = bindJSONAction(c)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.engine.Execute(c.Request.Context(), c.Param("id"), actor, action, req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// bindJSONAction accepts an empty body as "no inputs".
func bindJSONAction(c *gin.Context) (models.ActionRequest, error) {
	var req models.ActionRequest
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes))
	if err != nil {
		return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid action payload")
	}
	return req, nil
}

func bindMultipartAction(c *gin.Context) (models.ActionRequest, *models.SignatureUpload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	req := models.ActionRequest{
		Comment:    c.PostForm("comment"),
		AssigneeID: c.PostForm("assignee_id"),
	}
	if ids := c.PostFormArray("reviewer_ids"); len(ids) > 0 {
		req.ReviewerIDs = ids
	}
	upload, err := readUpload(c, "signature")
	if err != nil {
		return req, nil, err
	}
	return req, upload, nil
}

// readUpload returns nil when the form carries no such file.
func readUpload(c *gin.Context, field string) (*models.SignatureUpload, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart body")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file")
	}
	return &models.SignatureUpload{
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
