package store

import "github.com/jmoiron/sqlx"

// Provide creates the preferences store on the shared writer and reader pools.
func Provide(writer, reader *sqlx.DB) (Repository, func() error, error) {
	repo, err := newSQLRepositoryWithDB(writer, reader)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
