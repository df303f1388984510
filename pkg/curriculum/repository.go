package curriculum

import (
	"context"
	"errors"
	"time"

	"github.com/grouplan/grouplan/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	CreateClassTime(ctx context.Context, classTime ClassTime) error
	GetClassTime(ctx context.Context, classTimeUuid string) (ClassTime, error)
	UpdateClassTime(ctx context.Context, classTime ClassTime) error
	// DeleteClassTime removes the class time and every user's saved entry of it.
	DeleteClassTime(ctx context.Context, classTimeUuid string) error
	ListPublicClassTimes(ctx context.Context, limit, offset int) ([]ClassTime, int, error)
	// CountGradesUsing counts the class grades built on the class time.
	CountGradesUsing(ctx context.Context, classTimeUuid string) (int, error)

	// SaveClassTime puts the class time on the user's list. Saving twice is a no-op.
	SaveClassTime(ctx context.Context, userUuid, classTimeUuid string, at time.Time) error
	UnsaveClassTime(ctx context.Context, userUuid, classTimeUuid string) (bool, error)
	IsSaved(ctx context.Context, userUuid, classTimeUuid string) (bool, error)
	ListSavedClassTimes(ctx context.Context, userUuid string, limit, offset int) ([]ClassTime, int, error)

	CreateGrade(ctx context.Context, grade ClassGrade) error
	GetGrade(ctx context.Context, classGradeUuid string) (ClassGrade, error)
	UpdateGrade(ctx context.Context, grade ClassGrade) error
	// DeleteGrade removes the class grade together with its classes.
	DeleteGrade(ctx context.Context, classGradeUuid string) error
	ListGrades(ctx context.Context, userUuid string) ([]ClassGrade, error)

	// CreateClasses stores all classes or none.
	CreateClasses(ctx context.Context, classes []Class) error
	GetClass(ctx context.Context, classUuid string) (Class, error)
	// UpdateClasses moves all classes or none.
	UpdateClasses(ctx context.Context, classes []Class) error
	DeleteClasses(ctx context.Context, classUuids []string) error
	ListClasses(ctx context.Context, classGradeUuid string) ([]Class, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const classTimeColumns = `t.class_time_uuid, t.user_uuid, t.name, t.ticks, t.public, t.created_at, t.updated_at`

func scanClassTime(row pgx.Row) (ClassTime, error) {
	var ct ClassTime
	err := row.Scan(&ct.ClassTimeUuid, &ct.UserUuid, &ct.Name, &ct.Ticks, &ct.Public, &ct.CreatedAt, &ct.UpdatedAt)
	return ct, err
}

func collectClassTimes(rows pgx.Rows) ([]ClassTime, error) {
	defer rows.Close()
	classTimes := make([]ClassTime, 0)
	for rows.Next() {
		ct, err := scanClassTime(rows)
		if err != nil {
			log.Errorf("failed to scan class time: %v", err)
			return nil, err
		}
		classTimes = append(classTimes, ct)
	}
	return classTimes, rows.Err()
}

func (r *RepositoryImpl) CreateClassTime(ctx context.Context, ct ClassTime) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO class_time (class_time_uuid, user_uuid, name, ticks, public, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ct.ClassTimeUuid, ct.UserUuid, ct.Name, ct.Ticks, ct.Public, ct.CreatedAt, ct.UpdatedAt)
	if err != nil {
		log.Errorf("failed to create class time: %v", err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) GetClassTime(ctx context.Context, classTimeUuid string) (ClassTime, error) {
	ct, err := scanClassTime(r.db.QueryRow(ctx,
		`SELECT `+classTimeColumns+` FROM class_time t WHERE t.class_time_uuid = $1`, classTimeUuid))
	if errors.Is(err, pgx.ErrNoRows) {
		return ClassTime{}, ErrClassTimeNotFound
	}
	if err != nil {
		log.Errorf("failed to get class time %s: %v", classTimeUuid, err)
		return ClassTime{}, err
	}
	return ct, nil
}

func (r *RepositoryImpl) UpdateClassTime(ctx context.Context, ct ClassTime) error {
	result, err := r.db.Exec(ctx,
		`UPDATE class_time SET name = $1, ticks = $2, public = $3, updated_at = $4 WHERE class_time_uuid = $5`,
		ct.Name, ct.Ticks, ct.Public, ct.UpdatedAt, ct.ClassTimeUuid)
	if err != nil {
		log.Errorf("failed to update class time: %v", err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrClassTimeNotFound
	}
	return nil
}

func (r *RepositoryImpl) DeleteClassTime(ctx context.Context, classTimeUuid string) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM saved_class_time WHERE class_time_uuid = $1`, classTimeUuid); err != nil {
			log.Errorf("failed to delete saved entries of class time %s: %v", classTimeUuid, err)
			return err
		}
		result, err := tx.Exec(ctx, `DELETE FROM class_time WHERE class_time_uuid = $1`, classTimeUuid)
		if err != nil {
			log.Errorf("failed to delete class time %s: %v", classTimeUuid, err)
			return err
		}
		if result.RowsAffected() == 0 {
			return ErrClassTimeNotFound
		}
		return nil
	})
}

func (r *RepositoryImpl) ListPublicClassTimes(ctx context.Context, limit, offset int) ([]ClassTime, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM class_time WHERE public`).Scan(&total); err != nil {
		log.Errorf("failed to count class times: %v", err)
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+classTimeColumns+` FROM class_time t WHERE t.public
		 ORDER BY t.created_at DESC, t.class_time_uuid LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		log.Errorf("failed to list class times: %v", err)
		return nil, 0, err
	}
	classTimes, err := collectClassTimes(rows)
	if err != nil {
		return nil, 0, err
	}
	return classTimes, total, nil
}

func (r *RepositoryImpl) CountGradesUsing(ctx context.Context, classTimeUuid string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM class_grade WHERE class_time_uuid = $1`, classTimeUuid).Scan(&count)
	if err != nil {
		log.Errorf("failed to count grades using class time %s: %v", classTimeUuid, err)
		return 0, err
	}
	return count, nil
}

func (r *RepositoryImpl) SaveClassTime(ctx context.Context, userUuid, classTimeUuid string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO saved_class_time (user_uuid, class_time_uuid, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_uuid, class_time_uuid) DO NOTHING`,
		userUuid, classTimeUuid, at)
	if err != nil {
		log.Errorf("failed to save class time: %v", err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) UnsaveClassTime(ctx context.Context, userUuid, classTimeUuid string) (bool, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM saved_class_time WHERE user_uuid = $1 AND class_time_uuid = $2`, userUuid, classTimeUuid)
	if err != nil {
		log.Errorf("failed to remove saved class time: %v", err)
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *RepositoryImpl) IsSaved(ctx context.Context, userUuid, classTimeUuid string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM saved_class_time WHERE user_uuid = $1 AND class_time_uuid = $2)`,
		userUuid, classTimeUuid).Scan(&exists)
	if err != nil {
		log.Errorf("failed to check saved class time: %v", err)
		return false, err
	}
	return exists, nil
}

func (r *RepositoryImpl) ListSavedClassTimes(ctx context.Context, userUuid string, limit, offset int) ([]ClassTime, int, error) {
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM saved_class_time WHERE user_uuid = $1`, userUuid).Scan(&total); err != nil {
		log.Errorf("failed to count saved class times: %v", err)
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+classTimeColumns+` FROM class_time t
		 JOIN saved_class_time s ON s.class_time_uuid = t.class_time_uuid
		 WHERE s.user_uuid = $1
		 ORDER BY s.created_at DESC, t.class_time_uuid LIMIT $2 OFFSET $3`, userUuid, limit, offset)
	if err != nil {
		log.Errorf("failed to list saved class times: %v", err)
		return nil, 0, err
	}
	classTimes, err := collectClassTimes(rows)
	if err != nil {
		return nil, 0, err
	}
	return classTimes, total, nil
}

const gradeColumns = `class_grade_uuid, user_uuid, class_time_uuid, nickname, semester_begin, semester_end, created_at, updated_at`

func scanGrade(row pgx.Row) (ClassGrade, error) {
	var g ClassGrade
	err := row.Scan(&g.ClassGradeUuid, &g.UserUuid, &g.ClassTimeUuid, &g.Nickname,
		&g.SemesterBegin, &g.SemesterEnd, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func (r *RepositoryImpl) CreateGrade(ctx context.Context, g ClassGrade) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO class_grade (`+gradeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ClassGradeUuid, g.UserUuid, g.ClassTimeUuid, g.Nickname, g.SemesterBegin, g.SemesterEnd, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		log.Errorf("failed to create class grade: %v", err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) GetGrade(ctx context.Context, classGradeUuid string) (ClassGrade, error) {
	g, err := scanGrade(r.db.QueryRow(ctx,
		`SELECT `+gradeColumns+` FROM class_grade WHERE class_grade_uuid = $1`, classGradeUuid))
	if errors.Is(err, pgx.ErrNoRows) {
		return ClassGrade{}, ErrClassGradeNotFound
	}
	if err != nil {
		log.Errorf("failed to get class grade %s: %v", classGradeUuid, err)
		return ClassGrade{}, err
	}
	return g, nil
}

func (r *RepositoryImpl) UpdateGrade(ctx context.Context, g ClassGrade) error {
	result, err := r.db.Exec(ctx,
		`UPDATE class_grade SET class_time_uuid = $1, nickname = $2, semester_begin = $3, semester_end = $4, updated_at = $5
		 WHERE class_grade_uuid = $6`,
		g.ClassTimeUuid, g.Nickname, g.SemesterBegin, g.SemesterEnd, g.UpdatedAt, g.ClassGradeUuid)
	if err != nil {
		log.Errorf("failed to update class grade: %v", err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrClassGradeNotFound
	}
	return nil
}

func (r *RepositoryImpl) DeleteGrade(ctx context.Context, classGradeUuid string) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM class WHERE class_grade_uuid = $1`, classGradeUuid); err != nil {
			log.Errorf("failed to delete classes of grade %s: %v", classGradeUuid, err)
			return err
		}
		result, err := tx.Exec(ctx, `DELETE FROM class_grade WHERE class_grade_uuid = $1`, classGradeUuid)
		if err != nil {
			log.Errorf("failed to delete class grade %s: %v", classGradeUuid, err)
			return err
		}
		if result.RowsAffected() == 0 {
			return ErrClassGradeNotFound
		}
		return nil
	})
}

func (r *RepositoryImpl) ListGrades(ctx context.Context, userUuid string) ([]ClassGrade, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+gradeColumns+` FROM class_grade WHERE user_uuid = $1
		 ORDER BY semester_begin DESC, class_grade_uuid`, userUuid)
	if err != nil {
		log.Errorf("failed to list class grades: %v", err)
		return nil, err
	}
	defer rows.Close()

	grades := make([]ClassGrade, 0)
	for rows.Next() {
		g, err := scanGrade(rows)
		if err != nil {
			log.Errorf("failed to scan class grade: %v", err)
			return nil, err
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}

const classColumns = `class_uuid, class_grade_uuid, name, teacher, location, week, day_tick, start_tick, end_tick, created_at`

func scanClass(row pgx.Row) (Class, error) {
	var c Class
	err := row.Scan(&c.ClassUuid, &c.ClassGradeUuid, &c.Name, &c.Teacher, &c.Location,
		&c.Week, &c.DayTick, &c.StartTick, &c.EndTick, &c.CreatedAt)
	return c, err
}

func (r *RepositoryImpl) CreateClasses(ctx context.Context, classes []Class) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range classes {
			batch.Queue(`INSERT INTO class (`+classColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				c.ClassUuid, c.ClassGradeUuid, c.Name, c.Teacher, c.Location,
				c.Week, c.DayTick, c.StartTick, c.EndTick, c.CreatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			log.Errorf("failed to create classes: %v", err)
			return err
		}
		return nil
	})
}

func (r *RepositoryImpl) GetClass(ctx context.Context, classUuid string) (Class, error) {
	c, err := scanClass(r.db.QueryRow(ctx, `SELECT `+classColumns+` FROM class WHERE class_uuid = $1`, classUuid))
	if errors.Is(err, pgx.ErrNoRows) {
		return Class{}, ErrClassNotFound
	}
	if err != nil {
		log.Errorf("failed to get class %s: %v", classUuid, err)
		return Class{}, err
	}
	return c, nil
}

func (r *RepositoryImpl) UpdateClasses(ctx context.Context, classes []Class) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, c := range classes {
			result, err := tx.Exec(ctx,
				`UPDATE class SET name = $1, teacher = $2, location = $3, week = $4, day_tick = $5, start_tick = $6, end_tick = $7
				 WHERE class_uuid = $8`,
				c.Name, c.Teacher, c.Location, c.Week, c.DayTick, c.StartTick, c.EndTick, c.ClassUuid)
			if err != nil {
				log.Errorf("failed to update class %s: %v", c.ClassUuid, err)
				return err
			}
			if result.RowsAffected() == 0 {
				return ErrClassNotFound
			}
		}
		return nil
	})
}

func (r *RepositoryImpl) DeleteClasses(ctx context.Context, classUuids []string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM class WHERE class_uuid = ANY($1)`, classUuids)
	if err != nil {
		log.Errorf("failed to delete classes: %v", err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) ListClasses(ctx context.Context, classGradeUuid string) ([]Class, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+classColumns+` FROM class WHERE class_grade_uuid = $1
		 ORDER BY week, day_tick, start_tick, class_uuid`, classGradeUuid)
	if err != nil {
		log.Errorf("failed to list classes: %v", err)
		return nil, err
	}
	defer rows.Close()

	classes := make([]Class, 0)
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			log.Errorf("failed to scan class: %v", err)
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}
