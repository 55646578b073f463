// Pacote file implementa o armazenamento padrão das enquetes: um índice TSV e um arquivo de corpo por enquete.
package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/marcelojr/enquetes/internal/domain"
	"github.com/marcelojr/enquetes/internal/platform/logger"
)

const (
	indexFileName = "polls.index"
	bodySuffix    = ".poll"
	indexFields   = 5
)

// Store guarda o índice em memória, na ordem de inserção, e o regrava inteiro a cada alteração.
type Store struct {
	dir string

	mu    sync.Mutex
	order []domain.PollID
	index map[domain.PollID]domain.Summary
}

// Open cria o diretório se preciso e carrega o índice existente.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: criar diretorio: %w", err)
	}
	s := &Store{
		dir:   dir,
		index: make(map[domain.PollID]domain.Summary),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Put(ctx context.Context, p domain.Poll, updateIndex bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := p.ID()
	var buf bytes.Buffer
	if err := encodeBody(&buf, p); err != nil {
		return fmt.Errorf("file store: serializar %s: %w", id, err)
	}
	if err := writeAtomic(s.bodyPath(id), buf.Bytes()); err != nil {
		return fmt.Errorf("file store: gravar corpo %s: %w", id, err)
	}

	if !updateIndex {
		return nil
	}
	if _, ok := s.index[id]; !ok {
		s.order = append(s.order, id)
	}
	s.index[id] = p.Summary()
	return s.saveIndex()
}

func (s *Store) Get(ctx context.Context, id domain.PollID) (domain.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.bodyPath(id))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return domain.Poll{}, fmt.Errorf("file store: abrir corpo %s: %w", id, err)
		}
		if _, listed := s.index[id]; listed {
			// Índice aponta para um corpo que sumiu: a entrada fica órfã e é descartada.
			logger.Warn("indice sem corpo correspondente, removendo entrada", "poll", id)
			s.removeFromIndex(id)
			if err := s.saveIndex(); err != nil {
				return domain.Poll{}, err
			}
		}
		return domain.Poll{}, domain.ErrNotFound
	}
	defer f.Close()

	p, err := decodeBody(f)
	if err != nil {
		return domain.Poll{}, fmt.Errorf("file store: ler corpo %s: %w", id, err)
	}
	if p.ID() != id {
		return domain.Poll{}, fmt.Errorf("file store: corpo %s pertence a %s: %w", id, p.ID(), domain.ErrMalformed)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.Summary, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.index[id])
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, id domain.PollID, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index[id]
	if !ok {
		return domain.ErrNotFound
	}
	if entry.Author != requester {
		return domain.ErrNotAuthor
	}
	if err := os.Remove(s.bodyPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file store: remover corpo %s: %w", id, err)
	}
	s.removeFromIndex(id)
	return s.saveIndex()
}

func (s *Store) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("file store: %s nao e diretorio", s.dir)
	}
	return nil
}

func (s *Store) removeFromIndex(id domain.PollID) {
	delete(s.index, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Store) bodyPath(id domain.PollID) string {
	return filepath.Join(s.dir, string(id)+bodySuffix)
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, indexFileName)
}

func (s *Store) loadIndex() error {
	f, err := os.Open(s.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("file store: abrir indice: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		entry, err := parseIndexLine(scanner.Text())
		if err != nil {
			logger.Warn("linha do indice ignorada", "linha", line, "err", err)
			continue
		}
		if _, ok := s.index[entry.ID]; !ok {
			s.order = append(s.order, entry.ID)
		}
		s.index[entry.ID] = entry
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("file store: ler indice: %w", err)
	}
	return nil
}

func (s *Store) saveIndex() error {
	var b strings.Builder
	for _, id := range s.order {
		b.WriteString(formatIndexLine(s.index[id]))
	}
	if err := writeAtomic(s.indexPath(), []byte(b.String())); err != nil {
		return fmt.Errorf("file store: gravar indice: %w", err)
	}
	return nil
}

// Os campos não são escapados: tab ou quebra de linha no título corrompem a linha.
func formatIndexLine(e domain.Summary) string {
	active := "0"
	if e.Active {
		active = "1"
	}
	return strings.Join([]string{
		e.Title,
		e.Author,
		active,
		strconv.Itoa(domain.Ordinal(e.CreateDate)),
		string(e.ID),
	}, "\t") + "\n"
}

func parseIndexLine(line string) (domain.Summary, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != indexFields {
		return domain.Summary{}, fmt.Errorf("%w: %d campos", domain.ErrMalformed, len(fields))
	}
	var active bool
	switch fields[2] {
	case "0":
	case "1":
		active = true
	default:
		return domain.Summary{}, fmt.Errorf("%w: flag ativo %q", domain.ErrMalformed, fields[2])
	}
	ordinal, err := strconv.Atoi(fields[3])
	if err != nil || !domain.ValidOrdinal(ordinal) {
		return domain.Summary{}, fmt.Errorf("%w: data %q", domain.ErrMalformed, fields[3])
	}
	if fields[4] == "" {
		return domain.Summary{}, fmt.Errorf("%w: identificador vazio", domain.ErrMalformed)
	}
	return domain.Summary{
		ID:         domain.PollID(fields[4]),
		Title:      fields[0],
		Author:     fields[1],
		Active:     active,
		CreateDate: domain.FromOrdinal(ordinal),
	}, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var _ domain.PollStore = (*Store)(nil)
