package mysql

import "context"

// Repository aggregates the MySQL repositories
type Repository struct {
	ds *Datastore

	Run *RunRepository
}

// NewRepository connects, migrates the schema and creates the repositories
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}
	if err := ds.Migrate(ctx); err != nil {
		ds.Close()
		return nil, err
	}

	return &Repository{
		ds:  ds,
		Run: NewRunRepository(ds),
	}, nil
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
