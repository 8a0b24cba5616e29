package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"unitrack/api/internal/httpx"
	"unitrack/api/internal/middleware"
	"unitrack/api/internal/models"
	"unitrack/api/internal/repository"
	"unitrack/api/internal/service"
)

type taskResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Course    string    `json:"course"`
	Content   string    `json:"content"`
	Priority  string    `json:"priority"`
	DueDate   time.Time `json:"dueDate"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type attachmentResponse struct {
	ID          string    `json:"fileId"`
	FileName    string    `json:"originalName"`
	ContentType string    `json:"mimetype"`
	SizeBytes   int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toTaskResponse(task models.Task) taskResponse {
	return taskResponse{
		ID:        task.ID,
		Title:     task.Title,
		Course:    task.Course,
		Content:   task.Content,
		Priority:  string(task.Priority),
		DueDate:   task.DueDate,
		Completed: task.Completed,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
}

func toAttachmentResponse(att models.Attachment) attachmentResponse {
	return attachmentResponse{
		ID:          att.ID,
		FileName:    att.FileName,
		ContentType: att.ContentType,
		SizeBytes:   att.SizeBytes,
		CreatedAt:   att.CreatedAt,
	}
}

type taskRequest struct {
	Title     string `json:"title"`
	Course    string `json:"course"`
	Content   string `json:"content"`
	Priority  string `json:"priority"`
	DueDate   string `json:"dueDate"`
	Completed bool   `json:"completed"`
}

func (h HandlerSet) ListTasks(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Error(c, http.StatusUnauthorized, httpx.CodeTokenRequired, "unauthorized")
		return
	}

	tasks, err := h.tasks.List(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("list tasks failed")
		httpx.Error(c, http.StatusInternalServerError, httpx.CodeInternal, "server error listing tasks")
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		resp = append(resp, toTaskResponse(task))
	}
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) CreateTask(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Error(c, http.StatusUnauthorized, httpx.CodeTokenRequired, "unauthorized")
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, http.StatusBadRequest, httpx.CodeValidation, err.Error())
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), user.ID, taskInputFromRequest(req))
	if err != nil {
		h.respondTaskError(c, err, user.ID, "create task failed")
		return
	}

	c.JSON(http.StatusOK, toTaskResponse(task))
}

func (h HandlerSet) GetTask(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Error(c, http.StatusUnauthorized, httpx.CodeTokenRequired, "unauthorized")
		return
	}

	task, err := h.tasks.Get(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		h.respondTaskError(c, err, user.ID, "get task failed")
		return
	}

	atts, err := h.tasks.Attachments(c.Request.Context(), user.ID, task.ID)
	if err != nil {
		h.respondTaskError(c, err, user.ID, "list attachments failed")
		return
	}
	attResp := make([]attachmentResponse, 0, len(atts))
	for _, att := range atts {
		attResp = append(attResp, toAttachmentResponse(att))
	}

	c.JSON(http.StatusOK, taskDetailResponse{
		taskResponse: toTaskResponse(task),
		Attachments:  attResp,
	})
}

type taskDetailResponse struct {
	taskResponse
	Attachments []attachmentResponse `json:"attachments"`
}

func (h HandlerSet) UpdateTask(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Error(c, http.StatusUnauthorized, httpx.CodeTokenRequired, "unauthorized")
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, http.StatusBadRequest, httpx.CodeValidation, err.Error())
		return
	}

	task, err := h.tasks.Update(c.Request.Context(), user.ID, c.Param("id"), taskInputFromRequest(req))
	if err != nil {
		h.respondTaskError(c, err, user.ID, "update task failed")
		return
	}

	c.JSON(http.StatusOK, toTaskResponse(task))
}

func (h HandlerSet) DeleteTask(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Error(c, http.StatusUnauthorized, httpx.CodeTokenRequired, "unauthorized")
		return
	}

	if err := h.tasks.Delete(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		h.respondTaskError(c, err, user.ID, "delete task failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Task deleted.",
	})
}

func (h HandlerSet) UploadTaskFiles(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Error(c, http.StatusUnauthorized, httpx.CodeTokenRequired, "unauthorized")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		httpx.Error(c, http.StatusBadRequest, httpx.CodeValidation, "multipart form required")
		return
	}

	uploaded, err := h.tasks.UploadFiles(c.Request.Context(), user.ID, c.Param("id"), form.File["files"])
	if err != nil {
		h.respondTaskError(c, err, user.ID, "upload files failed")
		return
	}

	resp := make([]attachmentResponse, 0, len(uploaded))
	for _, att := range uploaded {
		resp = append(resp, toAttachmentResponse(att))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Files uploaded successfully",
		"attachments": resp,
	})
}

var nonASCII = regexp.MustCompile(`[^\x20-\x7E]`)

func (h HandlerSet) DownloadTaskFile(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Error(c, http.StatusUnauthorized, httpx.CodeTokenRequired, "unauthorized")
		return
	}

	att, reader, err := h.tasks.DownloadFile(c.Request.Context(), user.ID, c.Param("id"), c.Param("fileId"))
	if err != nil {
		h.respondTaskError(c, err, user.ID, "download file failed")
		return
	}
	defer reader.Close()

	// RFC 5987 filename* keeps non-ASCII names intact; the plain filename
	// is an ASCII fallback for older clients.
	asciiName := nonASCII.ReplaceAllString(att.FileName, "_")
	c.Header("Content-Type", att.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		asciiName, url.PathEscape(att.FileName)))

	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.log.Error().Err(err).Str("file_id", att.ID).Msg("attachment stream failed")
	}
}

func (h HandlerSet) DeleteTaskFile(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Error(c, http.StatusUnauthorized, httpx.CodeTokenRequired, "unauthorized")
		return
	}

	if err := h.tasks.DeleteFile(c.Request.Context(), user.ID, c.Param("id"), c.Param("fileId")); err != nil {
		h.respondTaskError(c, err, user.ID, "delete file failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "File deleted successfully",
	})
}

func (h HandlerSet) respondTaskError(c *gin.Context, err error, userID, logMsg string) {
	switch {
	case errors.Is(err, repository.ErrTaskNotFound):
		httpx.Error(c, http.StatusNotFound, httpx.CodeNotFound, "task not found or access denied")
	case errors.Is(err, repository.ErrAttachmentNotFound):
		httpx.Error(c, http.StatusNotFound, httpx.CodeNotFound, "attachment not found")
	case errors.Is(err, service.ErrValidation):
		httpx.Error(c, http.StatusBadRequest, httpx.CodeValidation, err.Error())
	default:
		h.log.Error().Err(err).Str("user_id", userID).Msg(logMsg)
		httpx.Error(c, http.StatusInternalServerError, httpx.CodeInternal, "internal server error")
	}
}

func taskInputFromRequest(req taskRequest) service.TaskInput {
	return service.TaskInput{
		Title:     req.Title,
		Course:    req.Course,
		Content:   req.Content,
		Priority:  req.Priority,
		DueDate:   req.DueDate,
		Completed: req.Completed,
	}
}
