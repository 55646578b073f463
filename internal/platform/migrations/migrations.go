// Pacote migrations versiona o esquema relacional das enquetes: corpos em "polls" e o índice em "poll_index".
package migrations

import (
	"fmt"

	gormigrate "github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/marcelojr/enquetes/internal/platform/storage/postgres"
)

const indiceAtivas = "idx_poll_index_active"

func versions() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "202410140001_polls_e_indice",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(postgres.Models()...)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("poll_index", "polls")
			},
		},
		{
			// A listagem da interface separa abertas de encerradas.
			ID: "202410140002_indice_por_situacao",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE INDEX IF NOT EXISTS " + indiceAtivas + " ON poll_index (active)").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS " + indiceAtivas).Error
			},
		},
	}
}

// Run aplica as versões pendentes; versões já registradas em "migrations" são puladas.
func Run(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("migrations: db nulo")
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, versions())
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migrations: falha ao aplicar: %w", err)
	}

	return nil
}

// Rollback desfaz a última versão aplicada.
func Rollback(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("migrations: db nulo")
	}
	if err := gormigrate.New(db, gormigrate.DefaultOptions, versions()).RollbackLast(); err != nil {
		return fmt.Errorf("migrations: falha ao desfazer: %w", err)
	}
	return nil
}
