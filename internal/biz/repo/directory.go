package repo

import "context"

// DirectoryRepo looks up display names.
// A missing scope is reported as *domain.PermissionError.
type DirectoryRepo interface {
	LookupName(ctx context.Context, id string) (string, error)
}
