package database

import (
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mattanmr/job-posting-aggregator/app/errs"
)

const (
	keywordsFileName = "keywords.json"
	MaxKeywordLength = 100
)

var keywordPattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

// ValidateKeyword trims surrounding whitespace and checks the charset and
// length rules. Comparison is exact afterwards: "Go" and "go" are distinct.
func ValidateKeyword(keyword string) (string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return "", errs.New(errs.ErrInvalidKeyword, "keyword must not be empty")
	}
	if utf8.RuneCountInString(keyword) > MaxKeywordLength {
		return "", errs.New(errs.ErrInvalidKeyword, "keyword must be at most %d characters", MaxKeywordLength)
	}
	if !keywordPattern.MatchString(keyword) {
		return "", errs.New(errs.ErrInvalidKeyword, "keyword may only contain letters, digits, spaces, hyphens and underscores")
	}
	return keyword, nil
}

// KeywordRepository keeps the active keywords in insertion order and
// persists every change before reporting success.
type KeywordRepository struct {
	db       *DB
	mu       sync.RWMutex
	keywords []string
}

func NewKeywordRepository(db *DB) (*KeywordRepository, error) {
	r := &KeywordRepository{db: db}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *KeywordRepository) load() error {
	var file keywordsFile
	if _, err := r.db.readJSON(keywordsFileName, &file); err != nil {
		return err
	}

	keywords := make([]string, 0, len(file.Keywords))
	for _, raw := range file.Keywords {
		keyword, err := ValidateKeyword(raw)
		if err != nil {
			slog.Warn("Skipping invalid stored keyword", "keyword", raw, "error", err)
			continue
		}
		if slices.Contains(keywords, keyword) {
			slog.Warn("Skipping duplicate stored keyword", "keyword", keyword)
			continue
		}
		keywords = append(keywords, keyword)
	}

	r.keywords = keywords
	slog.Debug("Keywords loaded", "count", len(keywords))
	return nil
}

func (r *KeywordRepository) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.keywords)
}

func (r *KeywordRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keywords)
}

func (r *KeywordRepository) Add(keyword string) ([]string, error) {
	keyword, err := ValidateKeyword(keyword)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.keywords, keyword) {
		return nil, errs.New(errs.ErrDuplicateKeyword, "keyword %q already exists", keyword)
	}

	next := append(slices.Clone(r.keywords), keyword)
	if err := r.persist(next); err != nil {
		return nil, err
	}
	r.keywords = next

	return slices.Clone(next), nil
}

func (r *KeywordRepository) Remove(keyword string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.Index(r.keywords, keyword)
	if idx < 0 {
		idx = slices.Index(r.keywords, strings.TrimSpace(keyword))
	}
	if idx < 0 {
		return nil, errs.New(errs.ErrNotFound, "keyword %q not found", keyword)
	}

	next := slices.Delete(slices.Clone(r.keywords), idx, idx+1)
	if err := r.persist(next); err != nil {
		return nil, err
	}
	r.keywords = next

	return slices.Clone(next), nil
}

func (r *KeywordRepository) persist(keywords []string) error {
	if err := r.db.writeJSON(keywordsFileName, keywordsFile{Keywords: keywords}); err != nil {
		return errs.Wrap(errs.ErrStorage, err, "failed to save keywords")
	}
	return nil
}
