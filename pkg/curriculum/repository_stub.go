package curriculum

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

type savedKey struct {
	userUuid      string
	classTimeUuid string
}

type RepositoryStub struct {
	mu         sync.RWMutex
	classTimes map[string]ClassTime
	saved      map[savedKey]time.Time
	grades     map[string]ClassGrade
	classes    map[string]Class
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		classTimes: make(map[string]ClassTime),
		saved:      make(map[savedKey]time.Time),
		grades:     make(map[string]ClassGrade),
		classes:    make(map[string]Class),
	}
}

func cloneClassTime(ct ClassTime) ClassTime {
	ct.Ticks = slices.Clone(ct.Ticks)
	return ct
}

func paginate[T any](items []T, limit, offset int) []T {
	start := min(offset, len(items))
	end := min(start+limit, len(items))
	return items[start:end]
}

func (r *RepositoryStub) CreateClassTime(ctx context.Context, ct ClassTime) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classTimes[ct.ClassTimeUuid] = cloneClassTime(ct)
	return nil
}

func (r *RepositoryStub) GetClassTime(ctx context.Context, classTimeUuid string) (ClassTime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.classTimes[classTimeUuid]
	if !ok {
		return ClassTime{}, ErrClassTimeNotFound
	}
	return cloneClassTime(ct), nil
}

func (r *RepositoryStub) UpdateClassTime(ctx context.Context, ct ClassTime) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.classTimes[ct.ClassTimeUuid]
	if !ok {
		return ErrClassTimeNotFound
	}
	existing.Name = ct.Name
	existing.Ticks = slices.Clone(ct.Ticks)
	existing.Public = ct.Public
	existing.UpdatedAt = ct.UpdatedAt
	r.classTimes[ct.ClassTimeUuid] = existing
	return nil
}

func (r *RepositoryStub) DeleteClassTime(ctx context.Context, classTimeUuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classTimes[classTimeUuid]; !ok {
		return ErrClassTimeNotFound
	}
	delete(r.classTimes, classTimeUuid)
	for key := range r.saved {
		if key.classTimeUuid == classTimeUuid {
			delete(r.saved, key)
		}
	}
	return nil
}

func (r *RepositoryStub) ListPublicClassTimes(ctx context.Context, limit, offset int) ([]ClassTime, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]ClassTime, 0)
	for _, ct := range r.classTimes {
		if ct.Public {
			matched = append(matched, cloneClassTime(ct))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ClassTimeUuid < matched[j].ClassTimeUuid
	})
	return paginate(matched, limit, offset), len(matched), nil
}

func (r *RepositoryStub) CountGradesUsing(ctx context.Context, classTimeUuid string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, g := range r.grades {
		if g.ClassTimeUuid == classTimeUuid {
			count++
		}
	}
	return count, nil
}

func (r *RepositoryStub) SaveClassTime(ctx context.Context, userUuid, classTimeUuid string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := savedKey{userUuid, classTimeUuid}
	if _, exists := r.saved[key]; !exists {
		r.saved[key] = at
	}
	return nil
}

func (r *RepositoryStub) UnsaveClassTime(ctx context.Context, userUuid, classTimeUuid string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := savedKey{userUuid, classTimeUuid}
	if _, ok := r.saved[key]; !ok {
		return false, nil
	}
	delete(r.saved, key)
	return true, nil
}

func (r *RepositoryStub) IsSaved(ctx context.Context, userUuid, classTimeUuid string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.saved[savedKey{userUuid, classTimeUuid}]
	return ok, nil
}

func (r *RepositoryStub) ListSavedClassTimes(ctx context.Context, userUuid string, limit, offset int) ([]ClassTime, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	type entry struct {
		classTime ClassTime
		savedAt   time.Time
	}
	entries := make([]entry, 0)
	for key, at := range r.saved {
		if key.userUuid != userUuid {
			continue
		}
		if ct, ok := r.classTimes[key.classTimeUuid]; ok {
			entries = append(entries, entry{cloneClassTime(ct), at})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].savedAt.Equal(entries[j].savedAt) {
			return entries[i].savedAt.After(entries[j].savedAt)
		}
		return entries[i].classTime.ClassTimeUuid < entries[j].classTime.ClassTimeUuid
	})
	classTimes := make([]ClassTime, 0, len(entries))
	for _, e := range entries {
		classTimes = append(classTimes, e.classTime)
	}
	return paginate(classTimes, limit, offset), len(classTimes), nil
}

func (r *RepositoryStub) CreateGrade(ctx context.Context, g ClassGrade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grades[g.ClassGradeUuid] = g
	return nil
}

func (r *RepositoryStub) GetGrade(ctx context.Context, classGradeUuid string) (ClassGrade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grades[classGradeUuid]
	if !ok {
		return ClassGrade{}, ErrClassGradeNotFound
	}
	return g, nil
}

func (r *RepositoryStub) UpdateGrade(ctx context.Context, g ClassGrade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.grades[g.ClassGradeUuid]
	if !ok {
		return ErrClassGradeNotFound
	}
	g.UserUuid = existing.UserUuid
	g.CreatedAt = existing.CreatedAt
	r.grades[g.ClassGradeUuid] = g
	return nil
}

func (r *RepositoryStub) DeleteGrade(ctx context.Context, classGradeUuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grades[classGradeUuid]; !ok {
		return ErrClassGradeNotFound
	}
	delete(r.grades, classGradeUuid)
	for uuid, c := range r.classes {
		if c.ClassGradeUuid == classGradeUuid {
			delete(r.classes, uuid)
		}
	}
	return nil
}

func (r *RepositoryStub) ListGrades(ctx context.Context, userUuid string) ([]ClassGrade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	grades := make([]ClassGrade, 0)
	for _, g := range r.grades {
		if g.UserUuid == userUuid {
			grades = append(grades, g)
		}
	}
	sort.Slice(grades, func(i, j int) bool {
		if !grades[i].SemesterBegin.Equal(grades[j].SemesterBegin) {
			return grades[i].SemesterBegin.After(grades[j].SemesterBegin)
		}
		return grades[i].ClassGradeUuid < grades[j].ClassGradeUuid
	})
	return grades, nil
}

func (r *RepositoryStub) CreateClasses(ctx context.Context, classes []Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range classes {
		r.classes[c.ClassUuid] = c
	}
	return nil
}

func (r *RepositoryStub) GetClass(ctx context.Context, classUuid string) (Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[classUuid]
	if !ok {
		return Class{}, ErrClassNotFound
	}
	return c, nil
}

func (r *RepositoryStub) UpdateClasses(ctx context.Context, classes []Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range classes {
		if _, ok := r.classes[c.ClassUuid]; !ok {
			return ErrClassNotFound
		}
	}
	for _, c := range classes {
		existing := r.classes[c.ClassUuid]
		c.ClassGradeUuid = existing.ClassGradeUuid
		c.CreatedAt = existing.CreatedAt
		r.classes[c.ClassUuid] = c
	}
	return nil
}

func (r *RepositoryStub) DeleteClasses(ctx context.Context, classUuids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, uuid := range classUuids {
		delete(r.classes, uuid)
	}
	return nil
}

func (r *RepositoryStub) ListClasses(ctx context.Context, classGradeUuid string) ([]Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	classes := make([]Class, 0)
	for _, c := range r.classes {
		if c.ClassGradeUuid == classGradeUuid {
			classes = append(classes, c)
		}
	}
	sort.Slice(classes, func(i, j int) bool {
		a, b := classes[i], classes[j]
		if a.Week != b.Week {
			return a.Week < b.Week
		}
		if a.DayTick != b.DayTick {
			return a.DayTick < b.DayTick
		}
		if a.StartTick != b.StartTick {
			return a.StartTick < b.StartTick
		}
		return a.ClassUuid < b.ClassUuid
	})
	return classes, nil
}
