package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/golang-migrate/migrate/v4"
)

type fakeVersion struct {
	version uint
	dirty   bool
	err     error
}

func (f fakeVersion) Version() (uint, bool, error) { return f.version, f.dirty, f.err }

func TestSchemaVersion(t *testing.T) {
	cases := []struct {
		name      string
		in        fakeVersion
		want      uint
		wantDirty bool
		wantErr   bool
	}{
		{"空库", fakeVersion{err: migrate.ErrNilVersion}, 0, false, false},
		{"正常", fakeVersion{version: 1}, 1, false, false},
		{"dirty", fakeVersion{version: 1, dirty: true}, 1, true, true},
		{"读取失败", fakeVersion{err: fmt.Errorf("connection refused")}, 0, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := schemaVersion(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("期望 err=%v，实际: %v", tc.wantErr, err)
			}
			if errors.Is(err, ErrDirtySchema) != tc.wantDirty {
				t.Errorf("ErrDirtySchema 判断错误: %v", err)
			}
			if got != tc.want {
				t.Errorf("期望版本 %d，实际 %d", tc.want, got)
			}
		})
	}
}

func TestUpError(t *testing.T) {
	if err := upError(nil); err != nil {
		t.Errorf("nil 应返回 nil，实际: %v", err)
	}
	if err := upError(migrate.ErrNoChange); err != nil {
		t.Errorf("ErrNoChange 不应视为失败，实际: %v", err)
	}
	if err := upError(migrate.ErrDirty{Version: 1}); !errors.Is(err, ErrDirtySchema) {
		t.Errorf("ErrDirty 应转换为 ErrDirtySchema，实际: %v", err)
	}
	boom := fmt.Errorf("syntax error at or near")
	if err := upError(boom); !errors.Is(err, boom) || errors.Is(err, ErrDirtySchema) {
		t.Errorf("其他错误应原样包装，实际: %v", err)
	}
}

func TestMigrationSource_Embedded(t *testing.T) {
	src, err := migrationSource()
	if err != nil {
		t.Fatalf("加载 embed 迁移失败: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("读取首个迁移失败: %v", err)
	}
	if first != 1 {
		t.Errorf("期望首个迁移版本 1，实际 %d", first)
	}
}
