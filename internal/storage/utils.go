package storage

import "github.com/adyngom/nano-agent/pkg/storage"

// InitStore picks a store implementation from the CLI flags: a Postgres
// connection string wins over a filesystem root.
func InitStore(dbConnStr, fileRoot string) (storage.Store, error) {
	if dbConnStr != "" {
		return NewPostgresStore(dbConnStr)
	}
	return NewFileStore(fileRoot)
}
