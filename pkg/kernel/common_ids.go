package kernel

import "github.com/google/uuid"

type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func GenerateUserID() UserID     { return UserID(uuid.NewString()) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

type RoleID string

func NewRoleID(id string) RoleID { return RoleID(id) }
func GenerateRoleID() RoleID     { return RoleID(uuid.NewString()) }
func (r RoleID) String() string  { return string(r) }
func (r RoleID) IsEmpty() bool   { return string(r) == "" }
