package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payprompt/payprompt-backend/internal/errs"
	"github.com/payprompt/payprompt-backend/internal/models"
)

type settingsRepo struct{ pool *pgxpool.Pool }

func (r *settingsRepo) Get(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := r.pool.QueryRow(ctx,
		`SELECT id, pre_approval_expiry_hours, approval_expiry_hours,
		        approval_reminder_interval, approval_reminder_frequency,
		        created_at, modified_at
		   FROM settings ORDER BY created_at DESC LIMIT 1`,
	).Scan(&s.ID, &s.PreApprovalExpiryHours, &s.ApprovalExpiryHours,
		&s.ApprovalReminderInterval, &s.ApprovalReminderFrequency,
		&s.CreatedAt, &s.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DefaultSettings(), nil
		}
		return models.Settings{}, errs.Server("could not load settings", err)
	}
	return s, nil
}

func (r *settingsRepo) Update(ctx context.Context, s models.Settings) (models.Settings, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO settings (id, pre_approval_expiry_hours, approval_expiry_hours,
		                       approval_reminder_interval, approval_reminder_frequency)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (id) DO UPDATE
		    SET pre_approval_expiry_hours=EXCLUDED.pre_approval_expiry_hours,
		        approval_expiry_hours=EXCLUDED.approval_expiry_hours,
		        approval_reminder_interval=EXCLUDED.approval_reminder_interval,
		        approval_reminder_frequency=EXCLUDED.approval_reminder_frequency,
		        modified_at=now()
		 RETURNING id, pre_approval_expiry_hours, approval_expiry_hours,
		           approval_reminder_interval, approval_reminder_frequency,
		           created_at, modified_at`,
		s.ID, s.PreApprovalExpiryHours, s.ApprovalExpiryHours,
		s.ApprovalReminderInterval, s.ApprovalReminderFrequency,
	).Scan(&s.ID, &s.PreApprovalExpiryHours, &s.ApprovalExpiryHours,
		&s.ApprovalReminderInterval, &s.ApprovalReminderFrequency,
		&s.CreatedAt, &s.ModifiedAt)
	if err != nil {
		return models.Settings{}, errs.Server("could not update settings", err)
	}
	return s, nil
}
