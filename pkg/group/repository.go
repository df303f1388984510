package group

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grouplan/grouplan/internal/apperr"
	"github.com/grouplan/grouplan/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var ErrGroupNotFound = fmt.Errorf("group not found: %w", apperr.ErrNotFound)
var ErrMemberNotFound = fmt.Errorf("group member not found: %w", apperr.ErrNotFound)

type Repository interface {
	Create(ctx context.Context, group Group) error
	Get(ctx context.Context, groupUuid string) (Group, error)
	Update(ctx context.Context, group Group) error
	// Delete removes the group together with its membership rows.
	Delete(ctx context.Context, groupUuid string) error
	// TransferMaster makes newMaster the master, drops its membership row and gives previousMaster one.
	TransferMaster(ctx context.Context, groupUuid, previousMaster, newMaster string, at time.Time) error
	List(ctx context.Context, query ListQuery) ([]Group, int, error)
	HasMember(ctx context.Context, groupUuid, userUuid string) (bool, error)
	// AddMembers stores all rows or none. Rows that already exist are left untouched.
	AddMembers(ctx context.Context, members []Member) error
	DeleteMember(ctx context.Context, groupUuid, userUuid string) (bool, error)
	ListMembers(ctx context.Context, groupUuid string) ([]Member, error)
	// ReachableGroupUuids returns the groups userUuid masters or has a membership row in.
	ReachableGroupUuids(ctx context.Context, userUuid string) ([]string, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const groupColumns = `g.group_uuid, g.name, g.master, g.user_able_add, g.tags, g.created_at, g.updated_at`

func scanGroup(row pgx.Row) (Group, error) {
	var g Group
	err := row.Scan(&g.GroupUuid, &g.Name, &g.Master, &g.UserAbleAdd, &g.Tags, &g.CreatedAt, &g.UpdatedAt)
	if g.Tags == nil {
		g.Tags = []string{}
	}
	return g, err
}

func (r *RepositoryImpl) Create(ctx context.Context, group Group) error {
	query := `INSERT INTO schedule_group (group_uuid, name, master, user_able_add, tags, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query,
		group.GroupUuid,
		group.Name,
		group.Master,
		group.UserAbleAdd,
		nonNil(group.Tags),
		group.CreatedAt,
		group.UpdatedAt,
	)
	if err != nil {
		log.Errorf("failed to create group: %v", err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) Get(ctx context.Context, groupUuid string) (Group, error) {
	query := `SELECT ` + groupColumns + ` FROM schedule_group g WHERE g.group_uuid = $1`
	g, err := scanGroup(r.db.QueryRow(ctx, query, groupUuid))
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, ErrGroupNotFound
	}
	if err != nil {
		log.Errorf("failed to get group %s: %v", groupUuid, err)
		return Group{}, err
	}
	return g, nil
}

func (r *RepositoryImpl) Update(ctx context.Context, group Group) error {
	query := `UPDATE schedule_group
			  SET name = $1, user_able_add = $2, tags = $3, updated_at = $4
			  WHERE group_uuid = $5`
	result, err := r.db.Exec(ctx, query, group.Name, group.UserAbleAdd, nonNil(group.Tags), group.UpdatedAt, group.GroupUuid)
	if err != nil {
		log.Errorf("failed to update group: %v", err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *RepositoryImpl) Delete(ctx context.Context, groupUuid string) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM group_member WHERE group_uuid = $1`, groupUuid); err != nil {
			log.Errorf("failed to delete members of group %s: %v", groupUuid, err)
			return err
		}
		result, err := tx.Exec(ctx, `DELETE FROM schedule_group WHERE group_uuid = $1`, groupUuid)
		if err != nil {
			log.Errorf("failed to delete group %s: %v", groupUuid, err)
			return err
		}
		if result.RowsAffected() == 0 {
			return ErrGroupNotFound
		}
		return nil
	})
}

func (r *RepositoryImpl) TransferMaster(ctx context.Context, groupUuid, previousMaster, newMaster string, at time.Time) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx,
			`UPDATE schedule_group SET master = $1, updated_at = $2 WHERE group_uuid = $3`,
			newMaster, at, groupUuid)
		if err != nil {
			log.Errorf("failed to change master of group %s: %v", groupUuid, err)
			return err
		}
		if result.RowsAffected() == 0 {
			return ErrGroupNotFound
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM group_member WHERE group_uuid = $1 AND user_uuid = $2`,
			groupUuid, newMaster); err != nil {
			log.Errorf("failed to remove membership of new master: %v", err)
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO group_member (group_uuid, user_uuid, status, created_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (group_uuid, user_uuid) DO NOTHING`,
			groupUuid, previousMaster, MemberActive, at); err != nil {
			log.Errorf("failed to add previous master as member: %v", err)
			return err
		}
		return nil
	})
}

// relationCondition renders the ownership part of a list query. $1 is always the acting user.
func relationCondition(relation Relation) (string, error) {
	isRow := `EXISTS (SELECT 1 FROM group_member m WHERE m.group_uuid = g.group_uuid AND m.user_uuid = $1)`
	switch relation {
	case RelationMaster:
		return `g.master = $1`, nil
	case RelationJoin:
		return isRow + ` AND g.master <> $1`, nil
	case RelationAll:
		return `(g.master = $1 OR ` + isRow + `)`, nil
	default:
		return "", ErrInvalidRelation
	}
}

func (r *RepositoryImpl) List(ctx context.Context, q ListQuery) ([]Group, int, error) {
	where, err := relationCondition(q.Relation)
	if err != nil {
		return nil, 0, err
	}
	args := []any{q.UserUuid}
	if q.Search != "" {
		args = append(args, database.ContainsPattern(q.Search))
		where += ` AND (g.name ILIKE $2 OR EXISTS (SELECT 1 FROM unnest(g.tags) AS t(tag) WHERE t.tag ILIKE $2))`
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM schedule_group g WHERE `+where, args...).Scan(&total); err != nil {
		log.Errorf("failed to count groups: %v", err)
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM schedule_group g WHERE %s
		ORDER BY g.created_at DESC, g.group_uuid LIMIT $%d OFFSET $%d`,
		groupColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		log.Errorf("failed to list groups: %v", err)
		return nil, 0, err
	}
	defer rows.Close()

	groups := make([]Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			log.Errorf("failed to scan group: %v", err)
			return nil, 0, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return groups, total, nil
}

func (r *RepositoryImpl) HasMember(ctx context.Context, groupUuid, userUuid string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_member WHERE group_uuid = $1 AND user_uuid = $2)`,
		groupUuid, userUuid).Scan(&exists)
	if err != nil {
		log.Errorf("failed to check membership: %v", err)
		return false, err
	}
	return exists, nil
}

func (r *RepositoryImpl) AddMembers(ctx context.Context, members []Member) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, m := range members {
			batch.Queue(`INSERT INTO group_member (group_uuid, user_uuid, status, created_at) VALUES ($1, $2, $3, $4)
						 ON CONFLICT (group_uuid, user_uuid) DO NOTHING`,
				m.GroupUuid, m.UserUuid, m.Status, m.CreatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			log.Errorf("failed to add group members: %v", err)
			return err
		}
		return nil
	})
}

func (r *RepositoryImpl) DeleteMember(ctx context.Context, groupUuid, userUuid string) (bool, error) {
	result, err := r.db.Exec(ctx,
		`DELETE FROM group_member WHERE group_uuid = $1 AND user_uuid = $2`, groupUuid, userUuid)
	if err != nil {
		log.Errorf("failed to delete group member: %v", err)
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *RepositoryImpl) ListMembers(ctx context.Context, groupUuid string) ([]Member, error) {
	rows, err := r.db.Query(ctx,
		`SELECT group_uuid, user_uuid, status, created_at FROM group_member
		 WHERE group_uuid = $1 ORDER BY created_at, user_uuid`, groupUuid)
	if err != nil {
		log.Errorf("failed to list group members: %v", err)
		return nil, err
	}
	defer rows.Close()

	members := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.GroupUuid, &m.UserUuid, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *RepositoryImpl) ReachableGroupUuids(ctx context.Context, userUuid string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT group_uuid FROM group_member WHERE user_uuid = $1
		 UNION
		 SELECT group_uuid FROM schedule_group WHERE master = $1`, userUuid)
	if err != nil {
		log.Errorf("failed to load reachable groups: %v", err)
		return nil, err
	}
	defer rows.Close()

	uuids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		uuids = append(uuids, id)
	}
	return uuids, rows.Err()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
