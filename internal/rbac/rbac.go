package rbac

// Perm is the permission an embed grants on a scope.
type Perm string

const (
	PermReadWrite Perm = "rw"
	PermReadOnly  Perm = "ro"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionCreate Action = "create"
	ActionMove   Action = "move"
	ActionDelete Action = "delete"
)

func Can(perm Perm, action Action) bool {
	switch perm {
	case PermReadWrite:
		return true
	case PermReadOnly:
		return action == ActionRead
	default:
		return false
	}
}

// CanWrite reports whether perm allows any structural or content change.
func CanWrite(perm Perm) bool {
	return Can(perm, ActionWrite)
}

// Normalize maps unknown values to read-only.
func Normalize(perm string) Perm {
	switch Perm(perm) {
	case PermReadWrite, PermReadOnly:
		return Perm(perm)
	default:
		return PermReadOnly
	}
}
