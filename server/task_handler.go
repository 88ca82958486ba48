package server

import (
	"net/http"
	"strconv"
	"strings"

	"TaskHub/logger"
	"TaskHub/model"

	"github.com/gorilla/mux"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TaskRequest 任务创建/更新请求体
type TaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

func parseTaskID(r *http.Request) (int64, bool) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ListTasksHandler 分页查询任务列表
func (h *APIHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	pageSize := defaultPageSize
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
		}
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	tasks, total, err := h.taskRepo.List(page, pageSize)
	if err != nil {
		logger.Error("查询任务列表失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "服务器内部错误")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}

	totalPages := (total + pageSize - 1) / pageSize
	writePage(w, tasks, &pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		TotalItems: int64(total),
	})
}

// CreateTaskHandler 创建任务
func (h *APIHandler) CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "任务标题不能为空")
		return
	}

	task := &model.Task{
		Title:  strings.TrimSpace(*req.Title),
		Status: model.TaskPending,
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		status := model.TaskStatus(*req.Status)
		if !model.ValidTaskStatus(status) {
			writeError(w, http.StatusBadRequest, codeValidation, "不支持的任务状态")
			return
		}
		task.Status = status
	}

	if err := h.taskRepo.Create(task); err != nil {
		logger.Error("创建任务失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "服务器内部错误")
		return
	}

	created, err := h.taskRepo.GetByID(task.ID)
	if err != nil || created == nil {
		// 回读失败时退回内存中的对象
		created = task
	}
	writeSuccess(w, http.StatusCreated, created)
}

// GetTaskHandler 查询单个任务
func (h *APIHandler) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, codeValidation, "任务ID格式错误")
		return
	}

	task, err := h.taskRepo.GetByID(id)
	if err != nil {
		logger.Error("查询任务失败", logger.Int64("taskID", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "服务器内部错误")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "任务不存在")
		return
	}
	writeSuccess(w, http.StatusOK, task)
}

// UpdateTaskHandler 更新任务
// PUT 要求完整字段，PATCH 只更新提交的字段。
func (h *APIHandler) UpdateTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, codeValidation, "任务ID格式错误")
		return
	}

	task, err := h.taskRepo.GetByID(id)
	if err != nil {
		logger.Error("查询任务失败", logger.Int64("taskID", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "服务器内部错误")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "任务不存在")
		return
	}

	var req TaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if r.Method == http.MethodPut {
		if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
			writeError(w, http.StatusBadRequest, codeValidation, "任务标题不能为空")
			return
		}
		if req.Status == nil {
			writeError(w, http.StatusBadRequest, codeValidation, "任务状态不能为空")
			return
		}
		if req.Description == nil {
			empty := ""
			req.Description = &empty
		}
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeError(w, http.StatusBadRequest, codeValidation, "任务标题不能为空")
			return
		}
		task.Title = title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		status := model.TaskStatus(*req.Status)
		if !model.ValidTaskStatus(status) {
			writeError(w, http.StatusBadRequest, codeValidation, "不支持的任务状态")
			return
		}
		task.Status = status
	}

	if err := h.taskRepo.Update(task); err != nil {
		logger.Error("更新任务失败", logger.Int64("taskID", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "服务器内部错误")
		return
	}

	updated, err := h.taskRepo.GetByID(id)
	if err != nil || updated == nil {
		updated = task
	}
	writeSuccess(w, http.StatusOK, updated)
}

// DeleteTaskHandler 删除任务
func (h *APIHandler) DeleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, codeValidation, "任务ID格式错误")
		return
	}

	task, err := h.taskRepo.GetByID(id)
	if err != nil {
		logger.Error("查询任务失败", logger.Int64("taskID", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "服务器内部错误")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "任务不存在")
		return
	}

	if err := h.taskRepo.Delete(id); err != nil {
		logger.Error("删除任务失败", logger.Int64("taskID", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "服务器内部错误")
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}
