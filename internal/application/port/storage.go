package port

import "context"

// FileStorage stores generated artifacts such as ledger reports
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	GetFullPath(relativePath string) string
}
