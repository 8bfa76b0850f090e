package database

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source"
)

var registerStubDBOnce sync.Once

// stubSource serves no migration files unless readUpFn/readDownFn say so.
type stubSource struct {
	closeFn    func() error
	readUpFn   func(uint) (io.ReadCloser, string, error)
	readDownFn func(uint) (io.ReadCloser, string, error)
}

func (s *stubSource) Open(string) (source.Driver, error) { return s, nil }
func (s *stubSource) First() (uint, error)               { return 0, os.ErrNotExist }
func (s *stubSource) Prev(uint) (uint, error)            { return 0, os.ErrNotExist }
func (s *stubSource) Next(uint) (uint, error)            { return 0, os.ErrNotExist }

func (s *stubSource) Close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

func (s *stubSource) ReadUp(version uint) (io.ReadCloser, string, error) {
	if s.readUpFn != nil {
		return s.readUpFn(version)
	}
	return nil, "", os.ErrNotExist
}

func (s *stubSource) ReadDown(version uint) (io.ReadCloser, string, error) {
	if s.readDownFn != nil {
		return s.readDownFn(version)
	}
	return nil, "", os.ErrNotExist
}

// stubDB records nothing; lockFn, closeFn and versionFn inject failures and
// the reported schema version.
type stubDB struct {
	lockFn    func() error
	closeFn   func() error
	versionFn func() (int, bool, error)
}

func (d *stubDB) Open(string) (migratedb.Driver, error) { return d, nil }
func (d *stubDB) Unlock() error                         { return nil }
func (d *stubDB) Run(io.Reader) error                   { return nil }
func (d *stubDB) SetVersion(int, bool) error            { return nil }
func (d *stubDB) Drop() error                           { return nil }

func (d *stubDB) Lock() error {
	if d.lockFn != nil {
		return d.lockFn()
	}
	return nil
}

func (d *stubDB) Close() error {
	if d.closeFn != nil {
		return d.closeFn()
	}
	return nil
}

func (d *stubDB) Version() (int, bool, error) {
	if d.versionFn != nil {
		return d.versionFn()
	}
	return migratedb.NilVersion, false, nil
}

func newTestMigrator(t *testing.T, src source.Driver, db migratedb.Driver) *Migrator {
	t.Helper()
	m, err := migrate.NewWithInstance("stub", src, "stub", db)
	if err != nil {
		t.Fatalf("unexpected migrate.NewWithInstance error: %v", err)
	}
	return &Migrator{m: m}
}

func TestMigrator_NoChangeIgnored(t *testing.T) {
	exhausted := &stubSource{
		readUpFn:   func(uint) (io.ReadCloser, string, error) { return nil, "", os.ErrExist },
		readDownFn: func(uint) (io.ReadCloser, string, error) { return nil, "", os.ErrExist },
	}
	atVersion := &stubDB{versionFn: func() (int, bool, error) { return 1, false, nil }}
	empty := &stubDB{versionFn: func() (int, bool, error) { return migratedb.NilVersion, false, nil }}

	if err := newTestMigrator(t, exhausted, atVersion).Up(); err != nil {
		t.Fatalf("up: expected nil error, got %v", err)
	}
	if err := newTestMigrator(t, &stubSource{}, empty).Down(); err != nil {
		t.Fatalf("down: expected nil error, got %v", err)
	}
	if err := newTestMigrator(t, &stubSource{}, empty).Steps(0); err != nil {
		t.Fatalf("steps: expected nil error, got %v", err)
	}
}

func TestMigrator_LockErrorsWrapped(t *testing.T) {
	tests := []struct {
		name string
		run  func(*Migrator) error
		want string
	}{
		{"up", (*Migrator).Up, "running migrations"},
		{"down", (*Migrator).Down, "rolling back migrations"},
		{"steps", func(m *Migrator) error { return m.Steps(-1) }, "stepping -1 migrations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &stubDB{lockFn: func() error { return errors.New("lock failed") }}
			err := tt.run(newTestMigrator(t, &stubSource{}, db))
			if err == nil || !strings.Contains(err.Error(), tt.want) || !strings.Contains(err.Error(), "lock failed") {
				t.Fatalf("expected %q wrapping the lock error, got %v", tt.want, err)
			}
		})
	}
}

func TestMigratorStatus(t *testing.T) {
	empty := &stubDB{versionFn: func() (int, bool, error) { return migratedb.NilVersion, false, nil }}
	status, err := newTestMigrator(t, &stubSource{}, empty).Status()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Applied || status.Version != 0 {
		t.Fatalf("expected nothing applied, got %+v", status)
	}

	dirty := &stubDB{versionFn: func() (int, bool, error) { return 2, true, nil }}
	status, err = newTestMigrator(t, &stubSource{}, dirty).Status()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != (MigrationStatus{Version: 2, Dirty: true, Applied: true}) {
		t.Fatalf("unexpected status: %+v", status)
	}

	broken := &stubDB{versionFn: func() (int, bool, error) { return 0, false, errors.New("relation missing") }}
	if _, err := newTestMigrator(t, &stubSource{}, broken).Status(); err == nil || !strings.Contains(err.Error(), "reading migration version") {
		t.Fatalf("expected wrapped version error, got %v", err)
	}
}

func TestMigratorClose_JoinsErrors(t *testing.T) {
	srcErr := errors.New("source close failed")
	dbErr := errors.New("db close failed")

	src := &stubSource{closeFn: func() error { return srcErr }}
	db := &stubDB{closeFn: func() error { return dbErr }}

	err := newTestMigrator(t, src, db).Close()
	if !errors.Is(err, srcErr) || !errors.Is(err, dbErr) {
		t.Fatalf("expected both close errors, got %v", err)
	}
	if err := newTestMigrator(t, &stubSource{}, &stubDB{}).Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

func TestNewMigrator_MissingDir(t *testing.T) {
	_, err := NewMigrator("postgres://localhost/study_buddy", filepath.Join(t.TempDir(), "absent"))
	if err == nil || !strings.Contains(err.Error(), "creating migrator") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewMigrator_Success(t *testing.T) {
	registerStubDBOnce.Do(func() {
		migratedb.Register("stubdbtest", &stubDB{})
	})

	m, err := NewMigrator("stubdbtest://example", t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}
