package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/payprompt/payprompt-backend/internal/repository"
)

type Repositories struct {
	Transactions repo.Transactions
	Settings     repo.Settings
	AuditLogs    repo.AuditLogs
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Transactions: &transactionsRepo{pool},
		Settings:     &settingsRepo{pool},
		AuditLogs:    &auditLogsRepo{pool},
	}
}
