package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"task-planner/internal/model"
	"task-planner/internal/service"
)

const maxTitleSize = 1 << 10

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Reminder    *time.Time `json:"reminder"`
	Tags        []string   `json:"tags"`
	Repetition  string     `json:"repetition"`
}

type updateTaskRequest struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	DueDate       *time.Time `json:"due_date"`
	ClearDueDate  bool       `json:"clear_due_date"`
	Reminder      *time.Time `json:"reminder"`
	ClearReminder bool       `json:"clear_reminder"`
	Tags          *[]string  `json:"tags"`
	Repetition    *string    `json:"repetition"`
	Completed     *bool      `json:"completed"`
}

func (s *Server) handleListTasks(c *gin.Context) {
	store, ok := s.storeFor(c)
	if !ok {
		return
	}

	scope, err := service.ParseScope(c.Query("scope"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	sortKey, err := service.ParseSortKey(c.Query("sort"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	tasks := store.Query(service.Query{
		Scope:        scope,
		SearchText:   strings.TrimSpace(c.Query("q")),
		RequiredTags: queryTags(c),
		SortKey:      sortKey,
		Now:          s.now().In(s.loc),
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tasks":   tasks,
		"count":   len(tasks),
	})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	store, ok := s.storeFor(c)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		badRequest(c, "title is required")
		return
	}
	if len(req.Title) > maxTitleSize {
		badRequest(c, "title exceeds maximum size of 1KB")
		return
	}
	repetition, err := model.ParseRepetition(req.Repetition)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	task, err := store.Add(c.Request.Context(), model.Draft{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Reminder:    req.Reminder,
		Tags:        req.Tags,
		Repetition:  repetition,
	})
	if err != nil {
		failure(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"task":    task,
	})
}

func (s *Server) handleGetTask(c *gin.Context) {
	store, ok := s.storeFor(c)
	if !ok {
		return
	}
	task, ok := ownedTask(c, store)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task":    task,
	})
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	store, ok := s.storeFor(c)
	if !ok {
		return
	}
	current, ok := ownedTask(c, store)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	patch, err := req.patch()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	task, err := store.UpdateByID(c.Request.Context(), current.ID, patch)
	if err != nil {
		failure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task":    task,
	})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	store, ok := s.storeFor(c)
	if !ok {
		return
	}
	current, ok := ownedTask(c, store)
	if !ok {
		return
	}

	if err := store.DeleteByID(c.Request.Context(), current.ID); err != nil {
		failure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "task deleted",
	})
}

// handleToggleTask flips completion. A partial failure still returns whatever succeeded.
func (s *Server) handleToggleTask(c *gin.Context) {
	store, ok := s.storeFor(c)
	if !ok {
		return
	}
	current, ok := ownedTask(c, store)
	if !ok {
		return
	}

	res, err := store.ToggleComplete(c.Request.Context(), current.ID)
	body := gin.H{
		"success": err == nil,
		"task":    res.Updated,
		"spawned": res.Spawned,
	}
	if err != nil {
		body["error"] = err.Error()
		c.JSON(statusFor(err), body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// handleRefresh re-reads the owner's tasks, picking up writes from other processes.
func (s *Server) handleRefresh(c *gin.Context) {
	owner, ok := ownerParam(c)
	if !ok {
		return
	}
	store, err := s.stores.Reload(c.Request.Context(), owner)
	if err != nil {
		failure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(store.Tasks()),
	})
}

func (s *Server) handleListTags(c *gin.Context) {
	store, ok := s.storeFor(c)
	if !ok {
		return
	}
	tags := store.UniqueTags()
	if tags == nil {
		tags = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"tags":       tags,
		"predefined": model.PredefinedTags,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	store, ok := s.storeFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   service.ComputeStats(store.Tasks(), s.now().In(s.loc)),
	})
}

func ownerParam(c *gin.Context) (uint, bool) {
	owner, err := strconv.ParseUint(c.Param("owner"), 10, 64)
	if err != nil || owner == 0 {
		badRequest(c, "owner must be a positive integer")
		return 0, false
	}
	return uint(owner), true
}

func (s *Server) storeFor(c *gin.Context) (*service.Store, bool) {
	owner, ok := ownerParam(c)
	if !ok {
		return nil, false
	}
	store, err := s.stores.For(c.Request.Context(), owner)
	if err != nil {
		failure(c, err)
		return nil, false
	}
	return store, true
}

// ownedTask looks the :id task up in the owner's collection only.
func ownedTask(c *gin.Context, store *service.Store) (model.Task, bool) {
	task, ok := store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "task not found",
		})
		return model.Task{}, false
	}
	return task, true
}

// queryTags accepts both ?tag=a&tag=b and ?tags=a,b.
func queryTags(c *gin.Context) []string {
	tags := c.QueryArray("tag")
	for _, raw := range c.QueryArray("tags") {
		tags = append(tags, strings.Split(raw, ",")...)
	}
	return model.NormalizeTags(tags)
}

func (r updateTaskRequest) patch() (model.Patch, error) {
	patch := model.Patch{
		Title:         r.Title,
		Description:   r.Description,
		DueDate:       r.DueDate,
		ClearDueDate:  r.ClearDueDate,
		Reminder:      r.Reminder,
		ClearReminder: r.ClearReminder,
		Tags:          r.Tags,
		Completed:     r.Completed,
	}
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		return patch, errors.New("title cannot be empty")
	}
	if r.Repetition != nil {
		rep, err := model.ParseRepetition(*r.Repetition)
		if err != nil {
			return patch, err
		}
		patch.Repetition = &rep
	}
	return patch, nil
}

func statusFor(err error) int {
	if errors.Is(err, service.ErrTaskNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func failure(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
	})
}
