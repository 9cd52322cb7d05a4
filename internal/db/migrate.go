package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

//go:embed sql/pre_automigrate.sql
var preAutoMigrateSQL string

//go:embed sql/post_automigrate.sql
var postAutoMigrateSQL string

type migrationStep struct {
	name string
	run  func(ctx context.Context, gdb *gorm.DB) error
}

// migrationSteps runs in order: the schema must exist before gorm creates
// tables in it, and indexes need the tables.
func migrationSteps() []migrationStep {
	return []migrationStep{
		sqlStep("pre-auto-migrate", preAutoMigrateSQL),
		{
			name: "gorm auto-migrate",
			run: func(ctx context.Context, gdb *gorm.DB) error {
				return gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...)
			},
		},
		sqlStep("post-auto-migrate", postAutoMigrateSQL),
	}
}

func sqlStep(name, text string) migrationStep {
	statements := splitStatements(text)
	return migrationStep{
		name: name,
		run: func(ctx context.Context, gdb *gorm.DB) error {
			for i, stmt := range statements {
				if err := gdb.WithContext(ctx).Exec(stmt).Error; err != nil {
					return fmt.Errorf("statement %d: %w", i+1, err)
				}
			}
			return nil
		},
	}
}

// splitStatements breaks a script on semicolons. The embedded scripts hold
// plain DDL with no quoted semicolons.
func splitStatements(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	for _, step := range migrationSteps() {
		if err := step.run(ctx, p.gdb); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}
