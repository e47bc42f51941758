package services

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// fakeDB routes calls to per-test function fields. A call on a nil field
// panics with the SQL so unexpected queries surface immediately.
type fakeDB struct {
	QueryRowFunc func(ctx context.Context, sql string, args ...any) Row
	QueryFunc    func(ctx context.Context, sql string, args ...any) (Rows, error)
	ExecFunc     func(ctx context.Context, sql string, args ...any) (CommandTag, error)
	BeginFunc    func(ctx context.Context) (Tx, error)
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) Row {
	if f.QueryRowFunc == nil {
		panic("unexpected QueryRow: " + sql)
	}
	return f.QueryRowFunc(ctx, sql, args...)
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	if f.QueryFunc == nil {
		panic("unexpected Query: " + sql)
	}
	return f.QueryFunc(ctx, sql, args...)
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	if f.ExecFunc == nil {
		panic("unexpected Exec: " + sql)
	}
	return f.ExecFunc(ctx, sql, args...)
}

func (f *fakeDB) Begin(ctx context.Context) (Tx, error) {
	if f.BeginFunc == nil {
		panic("unexpected Begin")
	}
	return f.BeginFunc(ctx)
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if i >= len(r.values) {
			break
		}
		assignValue(d, r.values[i])
	}
	return nil
}

// rowFromValues builds a Row whose Scan assigns the given values in order.
func rowFromValues(values ...any) Row {
	return fakeRow{values: values}
}

func errRow(err error) Row {
	return fakeRow{err: err}
}

// fakeRows yields one fakeRow worth of values per Next.
type fakeRows struct {
	rows   [][]any
	index  int
	err    error
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.index >= len(r.rows) {
		return false
	}
	r.index++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return fakeRow{values: r.rows[r.index-1]}.Scan(dest...)
}

func (r *fakeRows) Close()     { r.closed = true }
func (r *fakeRows) Err() error { return r.err }

type fakeCommandTag struct {
	rowsAffected int64
}

func (t fakeCommandTag) RowsAffected() int64 { return t.rowsAffected }

type fakeTx struct {
	*fakeDB
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

// assignValue writes value through the scan destination pointer, handling
// pointer destinations like *uuid.UUID and nullable columns passed as nil.
func assignValue(dest, value any) {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("scan destination must be a pointer, got %T", dest))
	}
	elem := dv.Elem()
	if value == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return
	}
	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(elem.Type()):
		elem.Set(v)
	case elem.Kind() == reflect.Ptr && v.Type().AssignableTo(elem.Type().Elem()):
		p := reflect.New(elem.Type().Elem())
		p.Elem().Set(v)
		elem.Set(p)
	case v.Type().ConvertibleTo(elem.Type()):
		elem.Set(v.Convert(elem.Type()))
	default:
		panic(fmt.Sprintf("cannot assign %T to %s", value, elem.Type()))
	}
}

// fakePusher records pushes and answers with a fixed delivery result.
type fakePusher struct {
	delivered bool
	pushes    []fakePush
}

type fakePush struct {
	userID uuid.UUID
	event  any
}

func (p *fakePusher) Push(userID uuid.UUID, event any) bool {
	p.pushes = append(p.pushes, fakePush{userID: userID, event: event})
	return p.delivered
}
