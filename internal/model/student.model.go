package model

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTreasurer Role = "bendahara"
	RoleTeacher   Role = "wali_kelas"
	RoleStudent   Role = "siswa"
	RoleParent    Role = "orang_tua"
)

func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleTreasurer || r == RoleTeacher
}

type Student struct {
	ID          int64  `json:"id"`
	NIS         string `json:"nis"`
	Name        string `json:"name"`
	ClassName   string `json:"class_name"`
	ParentID    *int64 `json:"parent_id"`
	ParentEmail string `json:"parent_email"`
}

// ActingUser is the authenticated caller as resolved by the auth layer in
// front of this service.
type ActingUser struct {
	ID        int64
	Role      Role
	Name      string
	Email     string
	StudentID *int64
}

// CanSee reports whether the user may view or pay invoices of the student.
func (u *ActingUser) CanSee(s *Student) bool {
	if u == nil || s == nil {
		return false
	}
	switch {
	case u.Role.IsStaff():
		return true
	case u.Role == RoleStudent:
		return u.StudentID != nil && *u.StudentID == s.ID
	case u.Role == RoleParent:
		return s.ParentID != nil && *s.ParentID == u.ID
	default:
		return false
	}
}
