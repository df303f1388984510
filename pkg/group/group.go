package group

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grouplan/grouplan/internal/apperr"
)

type Group struct {
	GroupUuid   string
	Name        string
	Master      string
	UserAbleAdd bool
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type MemberStatus int

const MemberActive MemberStatus = 1

// Member is a membership row. The master of a group never has one.
type Member struct {
	GroupUuid string
	UserUuid  string
	Status    MemberStatus
	CreatedAt time.Time
}

// Relation selects which groups GetGroupList returns for the acting user.
type Relation int

const (
	RelationMaster Relation = iota
	RelationJoin
	RelationAll
)

var ErrInvalidRelation = fmt.Errorf("unknown group relation: %w", apperr.ErrInvalidArgument)

func ParseRelation(s string) (Relation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "master":
		return RelationMaster, nil
	case "join":
		return RelationJoin, nil
	case "all":
		return RelationAll, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidRelation)
	}
}

func (r Relation) String() string {
	switch r {
	case RelationMaster:
		return "master"
	case RelationJoin:
		return "join"
	case RelationAll:
		return "all"
	default:
		return fmt.Sprintf("Relation(%d)", int(r))
	}
}

// ListQuery is the repository form of a GetGroupList call.
type ListQuery struct {
	UserUuid string
	Relation Relation
	Search   string
	Limit    int
	Offset   int
}

// Matches reports whether g belongs to the query result given the membership rows of q.UserUuid.
func (q ListQuery) Matches(g Group, hasRow bool) bool {
	var related bool
	switch q.Relation {
	case RelationMaster:
		related = g.Master == q.UserUuid
	case RelationJoin:
		related = hasRow && g.Master != q.UserUuid
	case RelationAll:
		related = hasRow || g.Master == q.UserUuid
	}
	return related && matchesSearch(g, q.Search)
}

func matchesSearch(g Group, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(g.Name), needle) {
		return true
	}
	for _, tag := range g.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// NewGroupUuid returns a random UUID without dashes.
func NewGroupUuid() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
