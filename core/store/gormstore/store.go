// Package gormstore persists callers and their call sessions in a SQL
// database through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-relay/core/conversations"
	"github.com/koscakluka/ema-relay/core/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the database behind dsn with the given driver.
func Open(driver, dsn string, config *gorm.Config) (*gorm.DB, error) {
	if config == nil {
		config = &gorm.Config{}
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return db, nil
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var (
	_ store.SessionStore  = (*Store)(nil)
	_ store.UserDirectory = (*Store)(nil)
)

// AutoMigrate creates or updates the users and sessions tables. Deployments
// that manage their schema elsewhere can skip it.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&User{}, &Session{}); err != nil {
		return fmt.Errorf("failed to migrate session tables: %w", err)
	}
	return nil
}

func (s *Store) GetOrCreateUser(ctx context.Context, phoneNumber string) (string, error) {
	ctx, span := tracer.Start(ctx, "get or create user")
	defer span.End()

	if phoneNumber == "" {
		phoneNumber = store.DefaultPhoneNumber
	}

	user := User{}
	if err := s.db.WithContext(ctx).
		Where(User{PhoneNumber: phoneNumber}).
		FirstOrCreate(&user).Error; err != nil {
		return "", recordError(span, fmt.Errorf("failed to get or create user: %w", err))
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	return user.ID.String(), nil
}

func (s *Store) CreateIfAbsent(ctx context.Context, userID, callID string) (conversations.Log, error) {
	ctx, span := tracer.Start(ctx, "create session if absent", trace.WithAttributes(attribute.String("call.id", callID)))
	defer span.End()

	owner, err := uuid.Parse(userID)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("invalid user id %q: %w", userID, err))
	}

	session := Session{}
	if err := s.db.WithContext(ctx).
		Where(Session{CallSID: callID}).
		Attrs(Session{UserID: owner, Conversation: []TurnRecord{}}).
		FirstOrCreate(&session).Error; err != nil {
		return nil, recordError(span, fmt.Errorf("failed to get or create session: %w", err))
	}

	return toLog(session.Conversation)
}

func (s *Store) Load(ctx context.Context, callID string) (conversations.Log, error) {
	ctx, span := tracer.Start(ctx, "load session", trace.WithAttributes(attribute.String("call.id", callID)))
	defer span.End()

	session := Session{}
	err := s.db.WithContext(ctx).Where(Session{CallSID: callID}).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	} else if err != nil {
		return nil, recordError(span, fmt.Errorf("failed to load session: %w", err))
	}

	return toLog(session.Conversation)
}

func (s *Store) Save(ctx context.Context, callID string, log conversations.Log) error {
	ctx, span := tracer.Start(ctx, "save session", trace.WithAttributes(
		attribute.String("call.id", callID),
		attribute.Int("conversation.turns", len(log)),
	))
	defer span.End()

	records := make([]TurnRecord, 0, len(log))
	if err := copier.Copy(&records, &log); err != nil {
		return recordError(span, fmt.Errorf("failed to convert conversation: %w", err))
	}

	return s.update(ctx, span, callID, "conversation", &Session{Conversation: records})
}

func (s *Store) SaveSummary(ctx context.Context, callID string, summary string) error {
	ctx, span := tracer.Start(ctx, "save session summary", trace.WithAttributes(attribute.String("call.id", callID)))
	defer span.End()

	return s.update(ctx, span, callID, "summary", &Session{Summary: &summary})
}

func (s *Store) update(ctx context.Context, span trace.Span, callID, column string, values *Session) error {
	result := s.db.WithContext(ctx).
		Model(&Session{}).
		Where(Session{CallSID: callID}).
		Select(column).
		Updates(values)
	if result.Error != nil {
		return recordError(span, fmt.Errorf("failed to update session %s: %w", column, result.Error))
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Summary returns the stored summary of a call, mostly useful for
// inspection.
func (s *Store) Summary(ctx context.Context, callID string) (string, error) {
	session := Session{}
	err := s.db.WithContext(ctx).Where(Session{CallSID: callID}).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", store.ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("failed to load session summary: %w", err)
	}
	if session.Summary == nil {
		return "", nil
	}
	return *session.Summary, nil
}

func toLog(records []TurnRecord) (conversations.Log, error) {
	log := make(conversations.Log, 0, len(records))
	if err := copier.Copy(&log, &records); err != nil {
		return nil, fmt.Errorf("failed to convert stored conversation: %w", err)
	}
	if err := log.Validate(); err != nil {
		logger.Warn("stored conversation is not valid", "error", err)
	}
	return log, nil
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
