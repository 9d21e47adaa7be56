package languages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/langgate/internal/kv"
	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/util"
)

// releaseTimeout bounds cleanup of a claimed index.
const releaseTimeout = 5 * time.Second

// Service implements catalogue operations on a kv.Store.
type Service struct {
	store  kv.Store
	logger observability.Logger
	now    func() time.Time
	newID  func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock replaces the clock stamping CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator replaces the UUIDv7 generator.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// NewService creates a language service.
func NewService(store kv.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: observability.NopLogger(),
		now:    time.Now,
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanonicalCode parses a BCP 47 tag and returns its canonical form.
func CanonicalCode(code string) (string, error) {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		verr := util.NewValidationError("invalid request")
		verr.AddField("code", "must be a BCP 47 language tag")
		return "", verr
	}
	return tag.String(), nil
}

// Add stores a language, failing with ErrCodeTaken if the code exists.
func (s *Service) Add(ctx context.Context, in NewLanguage, createdBy string) (Language, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.TrimSpace(in.Code)
	if err := util.ValidateStruct(in); err != nil {
		return Language{}, err
	}
	code, err := CanonicalCode(in.Code)
	if err != nil {
		return Language{}, err
	}

	id, err := s.newID()
	if err != nil {
		return Language{}, fmt.Errorf("generating language id: %w", err)
	}
	lang := Language{
		ID:        id,
		Name:      in.Name,
		Code:      code,
		CreatedBy: createdBy,
		CreatedAt: s.now().UTC(),
	}
	record, err := json.Marshal(lang)
	if err != nil {
		return Language{}, err
	}

	indexKey := kv.NewKey(PrefixLanguagesByCode, code)
	claimed, err := s.store.CompareAndSwap(ctx, indexKey, kv.NoVersion, []byte(id), 0)
	if err != nil {
		return Language{}, fmt.Errorf("claiming code index: %w", err)
	}
	if !claimed {
		return Language{}, ErrCodeTaken
	}

	ok, err := s.store.CompareAndSwap(ctx, kv.NewKey(PrefixLanguages, id), kv.NoVersion, record, 0)
	if err != nil || !ok {
		s.release(ctx, indexKey, code)
		if err == nil {
			err = errors.New("language id collision")
		}
		return Language{}, fmt.Errorf("writing language record: %w", err)
	}

	s.logger.WithContext(ctx).Info("language added",
		observability.String("language_id", id),
		observability.String("code", code),
	)
	return lang, nil
}

// release drops a claimed code index after a failed write. It survives
// cancellation of ctx but not a hung store.
func (s *Service) release(ctx context.Context, key kv.Key, code string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.store.Delete(cleanupCtx, key); err != nil {
		s.logger.WithContext(ctx).Error("failed to release code index",
			observability.String("code", code),
			observability.Error(err),
		)
	}
}

// Get returns the language with id.
func (s *Service) Get(ctx context.Context, id string) (Language, error) {
	if id == "" {
		return Language{}, ErrLanguageNotFound
	}
	entry, err := s.store.Get(ctx, kv.NewKey(PrefixLanguages, id))
	if err != nil {
		return Language{}, fmt.Errorf("reading language: %w", err)
	}
	if !entry.Exists() {
		return Language{}, ErrLanguageNotFound
	}
	var lang Language
	if err := json.Unmarshal(entry.Value, &lang); err != nil {
		return Language{}, fmt.Errorf("decoding language %s: %w", id, err)
	}
	return lang, nil
}

// GetByCode returns the language registered under a code. The code is
// canonicalized first; an unparseable code is simply not found.
func (s *Service) GetByCode(ctx context.Context, code string) (Language, error) {
	canonical, err := CanonicalCode(code)
	if err != nil {
		return Language{}, ErrLanguageNotFound
	}
	entry, err := s.store.Get(ctx, kv.NewKey(PrefixLanguagesByCode, canonical))
	if err != nil {
		return Language{}, fmt.Errorf("reading code index: %w", err)
	}
	if !entry.Exists() {
		return Language{}, ErrLanguageNotFound
	}
	return s.Get(ctx, string(entry.Value))
}

// List returns one page of languages in ID order.
func (s *Service) List(ctx context.Context, limit int, cursor string) (Page, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return Page{}, ErrInvalidLimit
	}

	res, err := s.store.ListByPrefix(ctx, kv.NewKey(PrefixLanguages), kv.ListOptions{
		Limit:  limit,
		Cursor: cursor,
	})
	if errors.Is(err, kv.ErrInvalidCursor) {
		return Page{}, ErrInvalidCursor
	}
	if err != nil {
		return Page{}, fmt.Errorf("listing languages: %w", err)
	}

	page := Page{Languages: make([]Language, 0, len(res.Entries)), Cursor: res.Cursor}
	for _, e := range res.Entries {
		var lang Language
		if err := json.Unmarshal(e.Value, &lang); err != nil {
			s.logger.WithContext(ctx).Warn("skipping unreadable language record",
				observability.String("key", e.Key.String()),
				observability.Error(err),
			)
			continue
		}
		page.Languages = append(page.Languages, lang)
	}
	return page, nil
}

// Delete removes a language and its code index.
func (s *Service) Delete(ctx context.Context, id string) error {
	lang, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, kv.NewKey(PrefixLanguages, id)); err != nil {
		return fmt.Errorf("deleting language: %w", err)
	}

	indexKey := kv.NewKey(PrefixLanguagesByCode, lang.Code)
	entry, err := s.store.Get(ctx, indexKey)
	if err != nil {
		return fmt.Errorf("reading code index: %w", err)
	}
	if string(entry.Value) == id {
		if err := s.store.Delete(ctx, indexKey); err != nil {
			return fmt.Errorf("deleting code index: %w", err)
		}
	}

	s.logger.WithContext(ctx).Info("language deleted",
		observability.String("language_id", id),
		observability.String("code", lang.Code),
	)
	return nil
}
