package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	Create(ctx context.Context, schedule Schedule) error
	Get(ctx context.Context, scheduleUuid string) (Schedule, error)
	Update(ctx context.Context, schedule Schedule) error
	Delete(ctx context.Context, scheduleUuid string) error
	// Find returns the matching schedules ordered by ascending priority, then start time.
	Find(ctx context.Context, filter Filter) ([]Schedule, error)
	Count(ctx context.Context, filter Filter) (int, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const scheduleColumns = `schedule_uuid, user_uuid, group_uuid, name, description, start_time, end_time, type,
	loop_type, custom_loop, tags, priority, resources, created_at, updated_at`

func scanSchedule(row pgx.Row) (Schedule, error) {
	var s Schedule
	var scheduleType, priority int16
	err := row.Scan(
		&s.ScheduleUuid,
		&s.UserUuid,
		&s.GroupUuid,
		&s.Name,
		&s.Description,
		&s.StartTime,
		&s.EndTime,
		&scheduleType,
		&s.LoopType,
		&s.CustomLoop,
		&s.Tags,
		&priority,
		&s.Resources,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	s.Type = Type(scheduleType)
	s.Priority = Priority(priority)
	if s.Tags == nil {
		s.Tags = []string{}
	}
	if s.Resources == nil {
		s.Resources = []string{}
	}
	return s, err
}

func (r *RepositoryImpl) Create(ctx context.Context, s Schedule) error {
	query := `INSERT INTO schedule (` + scheduleColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.db.Exec(ctx, query,
		s.ScheduleUuid,
		s.UserUuid,
		s.GroupUuid,
		s.Name,
		s.Description,
		s.StartTime,
		s.EndTime,
		int16(s.Type),
		s.LoopType,
		s.CustomLoop,
		nonNil(s.Tags),
		int16(s.Priority),
		nonNil(s.Resources),
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		log.Errorf("failed to create schedule: %v", err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) Get(ctx context.Context, scheduleUuid string) (Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedule WHERE schedule_uuid = $1`
	s, err := scanSchedule(r.db.QueryRow(ctx, query, scheduleUuid))
	if errors.Is(err, pgx.ErrNoRows) {
		return Schedule{}, ErrScheduleNotFound
	}
	if err != nil {
		log.Errorf("failed to get schedule %s: %v", scheduleUuid, err)
		return Schedule{}, err
	}
	return s, nil
}

func (r *RepositoryImpl) Update(ctx context.Context, s Schedule) error {
	query := `UPDATE schedule SET
				user_uuid = $1, group_uuid = $2, name = $3, description = $4, start_time = $5, end_time = $6,
				type = $7, loop_type = $8, custom_loop = $9, tags = $10, priority = $11, resources = $12,
				updated_at = $13
			  WHERE schedule_uuid = $14`
	result, err := r.db.Exec(ctx, query,
		s.UserUuid,
		s.GroupUuid,
		s.Name,
		s.Description,
		s.StartTime,
		s.EndTime,
		int16(s.Type),
		s.LoopType,
		s.CustomLoop,
		nonNil(s.Tags),
		int16(s.Priority),
		nonNil(s.Resources),
		s.UpdatedAt,
		s.ScheduleUuid,
	)
	if err != nil {
		log.Errorf("failed to update schedule: %v", err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *RepositoryImpl) Delete(ctx context.Context, scheduleUuid string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM schedule WHERE schedule_uuid = $1`, scheduleUuid)
	if err != nil {
		log.Errorf("failed to delete schedule: %v", err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *RepositoryImpl) Find(ctx context.Context, filter Filter) ([]Schedule, error) {
	where, args := filter.where()
	query := fmt.Sprintf(`SELECT %s FROM schedule WHERE %s ORDER BY priority, start_time, schedule_uuid`, scheduleColumns, where)
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		log.Errorf("failed to find schedules: %v", err)
		return nil, err
	}
	defer rows.Close()

	schedules := make([]Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			log.Errorf("failed to scan schedule: %v", err)
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (r *RepositoryImpl) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := filter.where()
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM schedule WHERE `+where, args...).Scan(&total); err != nil {
		log.Errorf("failed to count schedules: %v", err)
		return 0, err
	}
	return total, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
