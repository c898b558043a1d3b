package server

import (
	stderrors "errors"
	"net/http"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/policy"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (api *TaskAPI) register(ctx *gin.Context) {
	var req models.RegisterRequest
	if !api.bindJSON(ctx, &req) {
		return
	}
	var role models.Role
	if req.Role != "" {
		var ok bool
		if role, ok = models.ParseRole(req.Role); !ok {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
			return
		}
	}

	user, err := api.users.Register(ctx.Request.Context(), req.Username, req.Password, role)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"message": "user registered", "user": user})
}

func (api *TaskAPI) login(ctx *gin.Context) {
	var req models.LoginRequest
	if !api.bindJSON(ctx, &req) {
		return
	}
	user, err := api.users.Authenticate(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	tok, expiresAt, err := api.tokens.Issue(user.ID, user.Role)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	api.log.WithField("user_id", user.ID).Info("user logged in")
	ctx.JSON(http.StatusOK, gin.H{
		"token":      tok,
		"token_type": "Bearer",
		"expires_at": expiresAt,
		"user":       user,
	})
}

// getProfile returns the caller's account and details, or another user's
// when user_id is given and the caller may view any profile.
func (api *TaskAPI) getProfile(ctx *gin.Context) {
	targetID := currentUserID(ctx)
	if q := ctx.Query("user_id"); q != "" && q != targetID {
		if _, err := uuid.Parse(q); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		if !policy.Allows(currentRole(ctx), policy.ViewAnyProfile) {
			api.respondError(ctx, errors.ErrForbidden)
			return
		}
		targetID = q
	}

	user, err := api.users.GetUser(ctx.Request.Context(), targetID)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	details, err := api.users.GetUserProfile(ctx.Request.Context(), targetID)
	if err != nil {
		if !stderrors.Is(err, errors.ErrProfileNotFound) {
			api.respondError(ctx, err)
			return
		}
		details = &models.UserDetails{UserID: targetID}
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user, "details": details})
}

func (api *TaskAPI) updateProfile(ctx *gin.Context) {
	var patch models.ProfileUpdate
	if !api.bindJSON(ctx, &patch) {
		return
	}
	details, err := api.users.UpdateUserProfile(ctx.Request.Context(), currentUserID(ctx), patch)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"details": details})
}

func (api *TaskAPI) updateAccount(ctx *gin.Context) {
	var req models.UpdateUserRequest
	if !api.bindJSON(ctx, &req) {
		return
	}
	user, err := api.users.UpdateUser(ctx.Request.Context(), currentUserID(ctx), req.Username, req.Password)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "account updated", "user": user})
}

func (api *TaskAPI) changePassword(ctx *gin.Context) {
	var req models.ChangePasswordRequest
	if !api.bindJSON(ctx, &req) {
		return
	}
	ok, err := api.users.ChangePassword(ctx.Request.Context(), currentUserID(ctx), req.CurrentPassword, req.NewPassword)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	if !ok {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "current password is incorrect"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func (api *TaskAPI) changeUsername(ctx *gin.Context) {
	var req models.ChangeUsernameRequest
	if !api.bindJSON(ctx, &req) {
		return
	}
	if _, err := api.users.ChangeUsername(ctx.Request.Context(), currentUserID(ctx), req.NewUsername); err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "username changed"})
}

func (api *TaskAPI) listUsers(ctx *gin.Context) {
	users, err := api.users.ListUsers(ctx.Request.Context())
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"users": users})
}

func (api *TaskAPI) deleteUser(ctx *gin.Context) {
	targetID, ok := pathID(ctx, "userID")
	if !ok {
		return
	}
	currentID := currentUserID(ctx)
	if targetID == currentID {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "you cannot delete your own account"})
		return
	}
	deleted, err := api.users.DeleteUser(ctx.Request.Context(), currentID, targetID)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	if !deleted {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "user could not be deleted"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}
