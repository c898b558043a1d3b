// Package policy holds the whole authorization surface: a capability table
// keyed by role and action, and the task predicates built on top of it.
package policy

import "taskmanager/internal/domain/models"

type Action string

const (
	AssignTask       Action = "task:assign"
	CreateUrgentTask Action = "task:create_urgent"
	UpdateAnyTask    Action = "task:update_any"
	DeleteAnyTask    Action = "task:delete_any"
	ViewAnyTask      Action = "task:view_any"
	ChangeAnyStatus  Action = "task:change_status_any"
	ListAllTasks     Action = "task:list_all"
	SearchAllTasks   Action = "task:search_all"
	ListUsers        Action = "user:list"
	ViewAnyProfile   Action = "user:view_profile_any"
	DeleteUser       Action = "user:delete"
)

var capabilities = map[models.Role]map[Action]bool{
	models.RoleAdmin: {
		AssignTask:       true,
		CreateUrgentTask: true,
		UpdateAnyTask:    true,
		DeleteAnyTask:    true,
		ViewAnyTask:      true,
		ChangeAnyStatus:  true,
		ListAllTasks:     true,
		SearchAllTasks:   true,
		ListUsers:        true,
		ViewAnyProfile:   true,
		DeleteUser:       true,
	},
	models.RoleManager: {
		AssignTask:     true,
		ViewAnyTask:    true,
		ListAllTasks:   true,
		SearchAllTasks: true,
		ListUsers:      true,
		ViewAnyProfile: true,
	},
	models.RoleUser: {},
}

// Allows reports whether role carries the capability. Unknown roles carry
// nothing.
func Allows(role models.Role, action Action) bool {
	return capabilities[role][action]
}

func CanAssign(actor *models.User) bool {
	return actor != nil && Allows(actor.Role, AssignTask)
}

func CanUsePriority(actor *models.User, p models.TaskPriority) bool {
	if p != models.PriorityUrgent {
		return true
	}
	return actor != nil && Allows(actor.Role, CreateUrgentTask)
}

func CanView(task *models.Task, actor *models.User) bool {
	if task == nil || actor == nil {
		return false
	}
	return task.IsCreator(actor.ID) || task.IsAssignee(actor.ID) || Allows(actor.Role, ViewAnyTask)
}

func CanUpdate(task *models.Task, actor *models.User) bool {
	if task == nil || actor == nil {
		return false
	}
	return task.IsCreator(actor.ID) || task.IsAssignee(actor.ID) || Allows(actor.Role, UpdateAnyTask)
}

func CanDelete(task *models.Task, actor *models.User) bool {
	if task == nil || actor == nil {
		return false
	}
	return task.IsCreator(actor.ID) || Allows(actor.Role, DeleteAnyTask)
}

// CanChangeStatus gates on who the actor is, not on the target status: any
// transition is allowed for those who pass.
func CanChangeStatus(task *models.Task, actor *models.User, _ models.TaskStatus) bool {
	if task == nil || actor == nil {
		return false
	}
	return Allows(actor.Role, ChangeAnyStatus) || task.IsCreator(actor.ID) || task.IsAssignee(actor.ID)
}

// SeesAllTasks reports whether searches by actor are unscoped.
func SeesAllTasks(actor *models.User) bool {
	return actor != nil && Allows(actor.Role, SearchAllTasks)
}
