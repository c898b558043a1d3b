package service

import (
	"context"
	stderrors "errors"
	"strings"
	"time"
	"unicode/utf8"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/policy"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxAddressLen = 255
	maxPhoneLen   = 32

	// bcrypt ignores input past 72 bytes
	maxPasswordBytes = 72
)

type UserService struct {
	users    UserRepository
	log      logrus.FieldLogger
	hashCost int
	now      func() time.Time
}

type UserOption func(*UserService)

// WithHashCost overrides bcrypt.DefaultCost.
func WithHashCost(cost int) UserOption {
	return func(s *UserService) { s.hashCost = cost }
}

func NewUserService(users UserRepository, log logrus.FieldLogger, opts ...UserOption) *UserService {
	s := &UserService{
		users:    users,
		log:      log,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *UserService) Register(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.Validation("username must not be empty")
	}
	if password == "" {
		return nil, errors.Validation("password must not be empty")
	}
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, errors.Validation("unknown role %q", role)
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:  username,
		Password:  hash,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return user, nil
}

// Authenticate returns errors.ErrInvalidCredentials for both an unknown
// username and a wrong password.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return nil, errors.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		s.log.WithField("user_id", user.ID).Warn("failed login attempt")
		return nil, errors.ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.ListUsers(ctx)
}

// UpdateUser applies only the non-blank fields.
func (s *UserService) UpdateUser(ctx context.Context, id, newUsername, newPassword string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(newUsername); name != "" {
		user.Username = name
	}
	if strings.TrimSpace(newPassword) != "" {
		hash, err := s.hash(newPassword)
		if err != nil {
			return nil, err
		}
		user.Password = hash
	}
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword returns false without error when currentPassword does not
// match the stored hash.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (bool, error) {
	if newPassword == "" {
		return false, errors.Validation("new password must not be empty")
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(currentPassword)) != nil {
		s.log.WithField("user_id", userID).Warn("password change rejected: current password mismatch")
		return false, nil
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return false, err
	}
	user.Password = hash
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return false, err
	}
	s.log.WithField("user_id", userID).Info("password changed")
	return true, nil
}

func (s *UserService) ChangeUsername(ctx context.Context, userID, newUsername string) (bool, error) {
	newUsername = strings.TrimSpace(newUsername)
	if newUsername == "" {
		return false, errors.Validation("username must not be empty")
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	user.Username = newUsername
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

func (s *UserService) GetUserProfile(ctx context.Context, userID string) (*models.UserDetails, error) {
	return s.users.GetUserDetails(ctx, userID)
}

// UpdateUserProfile creates the details record on first edit; nil fields in
// the patch leave stored values untouched.
func (s *UserService) UpdateUserProfile(ctx context.Context, userID string, patch models.ProfileUpdate) (*models.UserDetails, error) {
	if patch.Address != nil && utf8.RuneCountInString(*patch.Address) > maxAddressLen {
		return nil, errors.Validation("address must not exceed %d characters", maxAddressLen)
	}
	if patch.PhoneNumber != nil && utf8.RuneCountInString(*patch.PhoneNumber) > maxPhoneLen {
		return nil, errors.Validation("phone number must not exceed %d characters", maxPhoneLen)
	}
	if patch.BirthDate != nil && patch.BirthDate.After(s.now()) {
		return nil, errors.Validation("birth date must not be in the future")
	}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	details, err := s.users.GetUserDetails(ctx, userID)
	if err != nil {
		if !stderrors.Is(err, errors.ErrProfileNotFound) {
			return nil, err
		}
		details = &models.UserDetails{UserID: userID}
	}
	if patch.Address != nil {
		details.Address = patch.Address
	}
	if patch.PhoneNumber != nil {
		details.PhoneNumber = patch.PhoneNumber
	}
	if patch.BirthDate != nil {
		details.BirthDate = patch.BirthDate
	}
	if err := s.users.SaveUserDetails(ctx, details); err != nil {
		return nil, err
	}
	return details, nil
}

// DeleteUser lets an admin remove another user together with their
// details. Every refusal (self-delete, non-admin actor, unknown user)
// yields false.
func (s *UserService) DeleteUser(ctx context.Context, currentUserID, targetUserID string) (bool, error) {
	if currentUserID == targetUserID {
		return false, nil
	}
	target, err := s.users.GetUserByID(ctx, targetUserID)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	actor, err := s.users.GetUserByID(ctx, currentUserID)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	if !policy.Allows(actor.Role, policy.DeleteUser) {
		s.log.WithFields(logrus.Fields{"user_id": actor.ID, "target_id": target.ID}).Warn("user deletion refused")
		return false, nil
	}

	if err := s.users.DeleteUserDetails(ctx, target.ID); err != nil && !stderrors.Is(err, errors.ErrProfileNotFound) {
		return false, err
	}
	if err := s.users.DeleteUser(ctx, target.ID); err != nil {
		return false, err
	}
	s.log.WithFields(logrus.Fields{"user_id": actor.ID, "target_id": target.ID}).Info("user deleted")
	return true, nil
}

func (s *UserService) hash(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", errors.Validation("password must not exceed %d bytes", maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", errors.Internal("hash password", err)
	}
	return string(hash), nil
}
