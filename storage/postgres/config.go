package postgres

type PostgresOption func(s *PostgresStore)

func WithDatabaseName(databaseName string) PostgresOption {
	return func(s *PostgresStore) {
		s.databaseName = databaseName
	}
}

func WithDatabaseSchema(databaseSchema string) PostgresOption {
	return func(s *PostgresStore) {
		s.databaseSchema = databaseSchema
	}
}

func WithDatabasePrefix(databasePrefix string) PostgresOption {
	return func(s *PostgresStore) {
		s.databasePrefix = databasePrefix
	}
}
