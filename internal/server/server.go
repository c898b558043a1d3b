package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/policy"
	"taskmanager/internal/service"
	"taskmanager/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type TaskAPI struct {
	httpSrv  *http.Server
	users    *service.UserService
	tasks    *service.TaskService
	tokens   *token.Service
	validate *validator.Validate
	limiter  *loginLimiter
	log      logrus.FieldLogger
}

func NewTaskAPI(userRepo service.UserRepository, taskRepo service.TaskRepository, cfg *Config, log logrus.FieldLogger) *TaskAPI {
	if userRepo == nil || taskRepo == nil {
		return nil
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	api := &TaskAPI{
		httpSrv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.Port)),
			ReadHeaderTimeout: 10 * time.Second,
		},
		users:    service.NewUserService(userRepo, log),
		tasks:    service.NewTaskService(taskRepo, userRepo, log),
		tokens:   token.NewService(cfg.JWTSecret, cfg.TokenTTL),
		validate: validator.New(),
		limiter:  newLoginLimiter(cfg.LoginRate),
		log:      log,
	}
	api.configRoutes()
	return api
}

func (api *TaskAPI) Start() error {
	if api.httpSrv == nil {
		return errors.ErrInternalServer
	}
	api.log.WithField("addr", api.httpSrv.Addr).Info("http server listening")
	if err := api.httpSrv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (api *TaskAPI) Shutdown(ctx context.Context) error {
	return api.httpSrv.Shutdown(ctx)
}

func (api *TaskAPI) configRoutes() {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), RequestLogger(api.log), GzipRequestDecompress())

	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	})

	auth := router.Group("/api/auth")
	{
		auth.POST("/register", api.register)
		auth.POST("/login", api.limiter.Middleware(), api.login)

		secured := auth.Group("", AuthRequired(api.tokens))
		secured.GET("/profile", api.getProfile)
		secured.PUT("/profile", api.updateProfile)
		secured.PUT("/account", api.updateAccount)
		secured.PUT("/change-password", api.changePassword)
		secured.PUT("/change-username", api.changeUsername)
		secured.GET("/users", RequireAction(policy.ListUsers), api.listUsers)
		secured.DELETE("/users/:userID", RequireAction(policy.DeleteUser), api.deleteUser)
	}

	tasks := router.Group("/api/tasks", AuthRequired(api.tokens))
	{
		tasks.POST("", api.createTask)
		tasks.GET("", RequireAction(policy.ListAllTasks), api.getAllTasks)
		tasks.GET("/my-tasks", api.getMyTasks)
		tasks.GET("/my-tasks-paginated", api.getMyTasksPaginated)
		tasks.GET("/search", api.searchTasks)
		tasks.GET("/quick-search", api.quickSearch)
		tasks.GET("/statistics", api.getStatistics)
		tasks.GET("/:taskID", api.getTaskByID)
		tasks.PUT("/:taskID", api.updateTask)
		tasks.DELETE("/:taskID", api.deleteTask)
	}

	api.httpSrv.Handler = router
}

var statusByKind = map[errors.Kind]int{
	errors.KindValidation:   http.StatusBadRequest,
	errors.KindUnauthorized: http.StatusUnauthorized,
	errors.KindForbidden:    http.StatusForbidden,
	errors.KindNotFound:     http.StatusNotFound,
	errors.KindConflict:     http.StatusConflict,
	errors.KindInternal:     http.StatusInternalServerError,
}

// respondError maps err to its status code. Internal failures are logged
// and answered with a generic message.
func (api *TaskAPI) respondError(ctx *gin.Context, err error) {
	kind := errors.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		api.log.WithError(err).WithFields(logrus.Fields{
			"method": ctx.Request.Method,
			"path":   ctx.Request.URL.Path,
		}).Error("request failed")
		ctx.JSON(status, gin.H{"error": errors.ErrInternalServer.Error()})
		return
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

// bindJSON decodes the body into req and runs its validate tags. It writes
// the 400 response itself and reports whether the handler may continue.
func (api *TaskAPI) bindJSON(ctx *gin.Context, req any) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return false
	}
	if err := api.validate.Struct(req); err != nil {
		api.respondError(ctx, validationErrorToErrorResponse(err))
		return false
	}
	return true
}

var jsonFieldNames = map[string]string{
	"Username":        "username",
	"Password":        "password",
	"CurrentPassword": "current_password",
	"NewPassword":     "new_password",
	"NewUsername":     "new_username",
}

func validationErrorToErrorResponse(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errors.Validation("invalid request")
	}
	verr := verrs[0]
	field, ok := jsonFieldNames[verr.Field()]
	if !ok {
		field = verr.Field()
	}
	switch verr.Tag() {
	case "required":
		return errors.Validation("%s is required", field)
	case "min":
		return errors.Validation("%s must be at least %s characters", field, verr.Param())
	case "max":
		return errors.Validation("%s must be at most %s characters", field, verr.Param())
	default:
		return errors.Validation("%s is invalid", field)
	}
}

// pathID reads a uuid path parameter, answering 400 when it is malformed.
func pathID(ctx *gin.Context, name string) (string, bool) {
	id := ctx.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return "", false
	}
	return id, true
}
