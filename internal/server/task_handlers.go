package server

import (
	"net/http"
	"strconv"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"

	"github.com/gin-gonic/gin"
)

func (api *TaskAPI) createTask(ctx *gin.Context) {
	req, ok := api.bindTaskRequest(ctx)
	if !ok {
		return
	}
	task, err := api.tasks.CreateTask(ctx.Request.Context(), req, currentUserID(ctx))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"task": task})
}

func (api *TaskAPI) updateTask(ctx *gin.Context) {
	taskID, ok := pathID(ctx, "taskID")
	if !ok {
		return
	}
	req, ok := api.bindTaskRequest(ctx)
	if !ok {
		return
	}
	task, err := api.tasks.UpdateTask(ctx.Request.Context(), taskID, req, currentUserID(ctx))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": task})
}

func (api *TaskAPI) deleteTask(ctx *gin.Context) {
	taskID, ok := pathID(ctx, "taskID")
	if !ok {
		return
	}
	if _, err := api.tasks.DeleteTask(ctx.Request.Context(), taskID, currentUserID(ctx)); err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

func (api *TaskAPI) getTaskByID(ctx *gin.Context) {
	taskID, ok := pathID(ctx, "taskID")
	if !ok {
		return
	}
	task, err := api.tasks.GetTaskByID(ctx.Request.Context(), taskID, currentUserID(ctx))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": task})
}

func (api *TaskAPI) getAllTasks(ctx *gin.Context) {
	tasks, err := api.tasks.GetAllTasks(ctx.Request.Context(), currentUserID(ctx))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (api *TaskAPI) getMyTasks(ctx *gin.Context) {
	tasks, err := api.tasks.GetUserTasks(ctx.Request.Context(), currentUserID(ctx))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (api *TaskAPI) getMyTasksPaginated(ctx *gin.Context) {
	page, err := queryInt(ctx, "page", 0)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	size, err := queryInt(ctx, "size", models.DefaultPageSize)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	result, err := api.tasks.GetUserTasksPaginated(ctx.Request.Context(), currentUserID(ctx), page, size)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (api *TaskAPI) searchTasks(ctx *gin.Context) {
	req, err := searchRequestFromQuery(ctx)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	result, err := api.tasks.SearchTasks(ctx.Request.Context(), req, currentUserID(ctx))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (api *TaskAPI) quickSearch(ctx *gin.Context) {
	tasks, err := api.tasks.QuickSearch(ctx.Request.Context(), ctx.Query("search_term"), currentUserID(ctx))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (api *TaskAPI) getStatistics(ctx *gin.Context) {
	stats, err := api.tasks.GetTaskStatistics(ctx.Request.Context(), currentUserID(ctx))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"statistics": stats})
}

// bindTaskRequest decodes a task body and normalises the case of status and
// priority so "in_progress" and "IN_PROGRESS" are the same value.
func (api *TaskAPI) bindTaskRequest(ctx *gin.Context) (models.TaskRequest, bool) {
	var req models.TaskRequest
	if !api.bindJSON(ctx, &req) {
		return req, false
	}
	if req.Status != nil {
		st, ok := models.ParseStatus(string(*req.Status))
		if !ok {
			api.respondError(ctx, errors.Validation("unknown status %q", *req.Status))
			return req, false
		}
		req.Status = &st
	}
	if req.Priority != nil {
		p, ok := models.ParsePriority(string(*req.Priority))
		if !ok {
			api.respondError(ctx, errors.Validation("unknown priority %q", *req.Priority))
			return req, false
		}
		req.Priority = &p
	}
	return req, true
}

func searchRequestFromQuery(ctx *gin.Context) (models.TaskSearchRequest, error) {
	req := models.TaskSearchRequest{
		Title: ctx.Query("title"),
		PageRequest: models.PageRequest{
			SortBy:        ctx.DefaultQuery("sort_by", "createdAt"),
			SortDirection: models.SortDirection(ctx.DefaultQuery("sort_direction", string(models.SortDesc))),
		},
	}
	if v := ctx.Query("status"); v != "" {
		st, ok := models.ParseStatus(v)
		if !ok {
			return req, errors.Validation("unknown status %q", v)
		}
		req.Status = &st
	}
	if v := ctx.Query("priority"); v != "" {
		p, ok := models.ParsePriority(v)
		if !ok {
			return req, errors.Validation("unknown priority %q", v)
		}
		req.Priority = &p
	}

	var err error
	if req.Page, err = queryInt(ctx, "page", 0); err != nil {
		return req, err
	}
	if req.Size, err = queryInt(ctx, "size", models.DefaultPageSize); err != nil {
		return req, err
	}
	return req, nil
}

func queryInt(ctx *gin.Context, key string, def int) (int, error) {
	v := ctx.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Validation("%s must be an integer", key)
	}
	return n, nil
}
