package audit

import (
	"context"
	"errors"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrMissingID is returned by Upsert when the record has no id to match on.
	ErrMissingID = errors.New("audit: upsert requires a record id")
	// ErrStaleWrite is returned when the target exists but no longer
	// satisfies the write's guards.
	ErrStaleWrite = errors.New("audit: record changed before the write")
	// ErrDeleted is returned by Upsert when the id belongs to a soft-deleted
	// record.
	ErrDeleted = errors.New("audit: record was deleted")
)

// Guard is an extra condition the target of a singular write must still
// satisfy when the write executes.
type Guard struct {
	Query any
	Args  []any
}

// Where builds a Guard from a gorm condition.
func Where(query any, args ...any) Guard {
	return Guard{Query: query, Args: args}
}

// bookkeepingFields are omitted from snapshots; they change on every write
// and would turn every update into a diff.
var bookkeepingFields = []string{"updated_at"}

// Gateway is the only write path to tracked tables. Each method performs
// one gorm write through the Interceptor, so every mutation is recorded.
// Reads do not go through the Gateway.
type Gateway struct {
	db          *gorm.DB
	interceptor *Interceptor
}

// NewGateway creates a Gateway that writes to db and records through interceptor.
func NewGateway(db *gorm.DB, interceptor *Interceptor) *Gateway {
	return &Gateway{db: db, interceptor: interceptor}
}

// Create inserts value.
func (g *Gateway) Create(ctx context.Context, value any) error {
	call := Call{Entity: g.entity(value), Op: OpCreate}
	_, err := g.interceptor.Intercept(ctx, call, func(ctx context.Context) (any, error) {
		if err := g.db.WithContext(ctx).Create(value).Error; err != nil {
			return nil, err
		}
		return snapshot(value), nil
	})
	return err
}

// Update applies updates to the record of model's type with the given id and
// reloads the persisted state into model. Returns gorm.ErrRecordNotFound if
// no such record exists and ErrStaleWrite if it fails one of guards.
func (g *Gateway) Update(ctx context.Context, model any, id string, updates map[string]any, guards ...Guard) error {
	call := Call{Entity: g.entity(model), Op: OpUpdate, ID: id, Lookup: g.lookup(model, id)}
	_, err := g.interceptor.Intercept(ctx, call, func(ctx context.Context) (any, error) {
		db := g.db.WithContext(ctx)
		res := guarded(db.Model(newOf(model)).Where("id = ?", id), guards).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, g.missing(ctx, model, id, guards)
		}
		if err := db.Where("id = ?", id).Take(model).Error; err != nil {
			return nil, err
		}
		return snapshot(model), nil
	})
	return err
}

// Upsert inserts value or, when a record with the same id exists, overwrites
// its columns. value must carry its id. Soft-deleted records are not
// revived; Upsert returns ErrDeleted for them.
func (g *Gateway) Upsert(ctx context.Context, value any) error {
	id, _ := snapshot(value)["id"].(string)
	if id == "" {
		return ErrMissingID
	}
	call := Call{Entity: g.entity(value), Op: OpUpsert, ID: id, Lookup: g.lookup(value, id)}
	_, err := g.interceptor.Intercept(ctx, call, func(ctx context.Context) (any, error) {
		db := g.db.WithContext(ctx)
		deleted, err := g.softDeleted(ctx, value, id)
		if err != nil {
			return nil, err
		}
		if deleted {
			return nil, ErrDeleted
		}
		err = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(value).Error
		if err != nil {
			return nil, err
		}
		if err := db.Where("id = ?", id).Take(value).Error; err != nil {
			return nil, err
		}
		return snapshot(value), nil
	})
	return err
}

// Delete removes the record of model's type with the given id. Models with
// a DeletedAt column are soft-deleted. Returns gorm.ErrRecordNotFound if no
// such record exists and ErrStaleWrite if it fails one of guards.
func (g *Gateway) Delete(ctx context.Context, model any, id string, guards ...Guard) error {
	call := Call{Entity: g.entity(model), Op: OpDelete, ID: id, Lookup: g.lookup(model, id)}
	_, err := g.interceptor.Intercept(ctx, call, func(ctx context.Context) (any, error) {
		res := guarded(g.db.WithContext(ctx).Where("id = ?", id), guards).Delete(newOf(model))
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, g.missing(ctx, model, id, guards)
		}
		return nil, nil
	})
	return err
}

// CreateMany inserts a slice of records and returns the number inserted.
func (g *Gateway) CreateMany(ctx context.Context, values any) (int64, error) {
	call := Call{Entity: g.entity(values), Op: OpCreateMany}
	result, err := g.interceptor.Intercept(ctx, call, func(ctx context.Context) (any, error) {
		res := g.db.WithContext(ctx).Create(values)
		return res.RowsAffected, res.Error
	})
	return count(result), err
}

// UpdateMany applies updates to every record of model's type matching the
// condition and returns the number affected.
func (g *Gateway) UpdateMany(ctx context.Context, model any, updates map[string]any, query any, args ...any) (int64, error) {
	call := Call{Entity: g.entity(model), Op: OpUpdateMany}
	result, err := g.interceptor.Intercept(ctx, call, func(ctx context.Context) (any, error) {
		res := g.db.WithContext(ctx).Model(newOf(model)).Where(query, args...).Updates(updates)
		return res.RowsAffected, res.Error
	})
	return count(result), err
}

// DeleteMany removes every record of model's type matching the condition and
// returns the number affected.
func (g *Gateway) DeleteMany(ctx context.Context, model any, query any, args ...any) (int64, error) {
	call := Call{Entity: g.entity(model), Op: OpDeleteMany}
	result, err := g.interceptor.Intercept(ctx, call, func(ctx context.Context) (any, error) {
		res := g.db.WithContext(ctx).Where(query, args...).Delete(newOf(model))
		return res.RowsAffected, res.Error
	})
	return count(result), err
}

// entity returns the gorm schema name of a model, a pointer to one, or a
// slice of them.
func (g *Gateway) entity(model any) string {
	stmt := &gorm.Statement{DB: g.db}
	if err := stmt.Parse(model); err == nil && stmt.Schema != nil {
		return stmt.Schema.Name
	}
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	return t.Name()
}

func (g *Gateway) lookup(model any, id string) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		dest := newOf(model)
		if err := g.db.WithContext(ctx).Where("id = ?", id).Take(dest).Error; err != nil {
			return nil, err
		}
		return snapshot(dest), nil
	}
}

// missing explains why a guarded write by id matched no rows.
func (g *Gateway) missing(ctx context.Context, model any, id string, guards []Guard) error {
	if len(guards) == 0 {
		return gorm.ErrRecordNotFound
	}
	if err := g.db.WithContext(ctx).Where("id = ?", id).Take(newOf(model)).Error; err != nil {
		return err
	}
	return ErrStaleWrite
}

// softDeleted reports whether id names a soft-deleted record of value's type.
func (g *Gateway) softDeleted(ctx context.Context, value any, id string) (bool, error) {
	stmt := &gorm.Statement{DB: g.db}
	if err := stmt.Parse(value); err != nil || stmt.Schema.LookUpField("deleted_at") == nil {
		return false, nil
	}
	var n int64
	err := g.db.WithContext(ctx).Unscoped().Model(newOf(value)).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		Count(&n).Error
	return n > 0, err
}

func guarded(db *gorm.DB, guards []Guard) *gorm.DB {
	for _, gd := range guards {
		db = db.Where(gd.Query, gd.Args...)
	}
	return db
}

// newOf returns a pointer to a new zero value of model's struct type.
func newOf(model any) any {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}

func snapshot(v any) map[string]any {
	m := Snapshot(v)
	for _, f := range bookkeepingFields {
		delete(m, f)
	}
	return m
}

func count(result any) int64 {
	n, _ := result.(int64)
	return n
}
