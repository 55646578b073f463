package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marcelojr/enquetes/internal/domain"
	"github.com/marcelojr/enquetes/internal/platform/logger"
)

// PollRepository mantém corpos e índice em tabelas separadas, com a mesma semântica do armazenamento em arquivos.
type PollRepository struct {
	db *gorm.DB
}

func NewPollRepository(db *gorm.DB) *PollRepository {
	return &PollRepository{db: db}
}

type pollModel struct {
	ID              string         `gorm:"column:id;type:char(40);primaryKey"`
	Title           string         `gorm:"column:title;type:text;not null"`
	Author          string         `gorm:"column:author;type:text;not null"`
	Active          bool           `gorm:"column:active;not null"`
	CreateDate      int            `gorm:"column:create_date;not null"`
	MaxVoters       int            `gorm:"column:max_voters;not null"`
	Question        string         `gorm:"column:question;type:text"`
	NumberOfOptions int            `gorm:"column:number_of_options;not null"`
	Options         []string       `gorm:"column:options;type:text;serializer:json"`
	Data            []int          `gorm:"column:data;type:text;serializer:json"`
	Votes           map[string]int `gorm:"column:votes;type:text;serializer:json"`
}

func (pollModel) TableName() string {
	return "polls"
}

type summaryModel struct {
	ID         string `gorm:"column:id;type:char(40);primaryKey"`
	Title      string `gorm:"column:title;type:text;not null"`
	Author     string `gorm:"column:author;type:text;not null;index"`
	Active     bool   `gorm:"column:active;not null"`
	CreateDate int    `gorm:"column:create_date;not null"`
}

func (summaryModel) TableName() string {
	return "poll_index"
}

// Models lista as tabelas para as migrations.
func Models() []any {
	return []any{&pollModel{}, &summaryModel{}}
}

func fromDomainPoll(p domain.Poll) pollModel {
	model := pollModel{
		ID:              string(p.ID()),
		Title:           p.Title,
		Author:          p.Author,
		Active:          p.Active,
		CreateDate:      domain.Ordinal(p.CreateDate),
		MaxVoters:       p.MaxVoters,
		Question:        p.Question,
		NumberOfOptions: p.NumberOfOptions,
		Options:         p.Options[:],
		Data:            p.Data[:],
		Votes:           make(map[string]int, len(p.Votes)),
	}
	for voter, choice := range p.Votes {
		model.Votes[string(voter)] = choice
	}
	return model
}

func (m pollModel) toDomain() (domain.Poll, error) {
	if len(m.Options) > domain.MaxOptions || len(m.Data) > domain.MaxOptions {
		return domain.Poll{}, fmt.Errorf("%w: alternativas demais em %s", domain.ErrMalformed, m.ID)
	}
	p := domain.Poll{
		Title:           m.Title,
		Author:          m.Author,
		Active:          m.Active,
		CreateDate:      domain.FromOrdinal(m.CreateDate),
		MaxVoters:       m.MaxVoters,
		Question:        m.Question,
		NumberOfOptions: m.NumberOfOptions,
		Votes:           make(map[domain.VoterID]int, len(m.Votes)),
	}
	copy(p.Options[:], m.Options)
	copy(p.Data[:], m.Data)
	for voter, choice := range m.Votes {
		p.Votes[domain.VoterID(voter)] = choice
	}
	return p, nil
}

func fromDomainSummary(s domain.Summary) summaryModel {
	return summaryModel{
		ID:         string(s.ID),
		Title:      s.Title,
		Author:     s.Author,
		Active:     s.Active,
		CreateDate: domain.Ordinal(s.CreateDate),
	}
}

func (m summaryModel) toDomain() domain.Summary {
	return domain.Summary{
		ID:         domain.PollID(m.ID),
		Title:      m.Title,
		Author:     m.Author,
		Active:     m.Active,
		CreateDate: domain.FromOrdinal(m.CreateDate),
	}
}

func (r *PollRepository) Put(ctx context.Context, p domain.Poll, updateIndex bool) error {
	body := fromDomainPoll(p)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&body).Error; err != nil {
			return fmt.Errorf("gorm polls: gravar corpo: %w", err)
		}
		if !updateIndex {
			return nil
		}
		entry := fromDomainSummary(p.Summary())
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error; err != nil {
			return fmt.Errorf("gorm polls: gravar indice: %w", err)
		}
		return nil
	})
	return err
}

func (r *PollRepository) Get(ctx context.Context, id domain.PollID) (domain.Poll, error) {
	var model pollModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", string(id)).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Poll{}, fmt.Errorf("gorm polls: buscar id: %w", err)
		}
		// Entrada de índice sem corpo é descartada, como no armazenamento em arquivos.
		res := r.db.WithContext(ctx).Delete(&summaryModel{}, "id = ?", string(id))
		if res.Error != nil {
			return domain.Poll{}, fmt.Errorf("gorm polls: limpar indice: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			logger.Warn("indice sem corpo correspondente, removendo entrada", "poll", id)
		}
		return domain.Poll{}, domain.ErrNotFound
	}

	p, err := model.toDomain()
	if err != nil {
		return domain.Poll{}, err
	}
	if p.ID() != id {
		return domain.Poll{}, fmt.Errorf("gorm polls: corpo %s pertence a %s: %w", id, p.ID(), domain.ErrMalformed)
	}
	return p, nil
}

func (r *PollRepository) List(ctx context.Context) ([]domain.Summary, error) {
	var models []summaryModel
	if err := r.db.WithContext(ctx).
		Order("create_date ASC").
		Order("title ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm polls: listar indice: %w", err)
	}

	result := make([]domain.Summary, len(models))
	for i, model := range models {
		result[i] = model.toDomain()
	}
	return result, nil
}

func (r *PollRepository) Delete(ctx context.Context, id domain.PollID, requester string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry summaryModel
		if err := tx.First(&entry, "id = ?", string(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("gorm polls: buscar indice: %w", err)
		}
		if entry.Author != requester {
			return domain.ErrNotAuthor
		}
		if err := tx.Delete(&pollModel{}, "id = ?", string(id)).Error; err != nil {
			return fmt.Errorf("gorm polls: remover corpo: %w", err)
		}
		if err := tx.Delete(&summaryModel{}, "id = ?", string(id)).Error; err != nil {
			return fmt.Errorf("gorm polls: remover indice: %w", err)
		}
		return nil
	})
}

func (r *PollRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("gorm polls: obter sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

var _ domain.PollStore = (*PollRepository)(nil)
