package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var (
	_ contract.ThreadResolver = (*SQLRepository)(nil)
	_ contract.MessageStore   = (*SQLRepository)(nil)
	_ contract.HistoryReader  = (*SQLRepository)(nil)
)

// GORM models used for persistence.
type ThreadModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	OwnerID   string    `gorm:"not null"`
	PairKey   string    `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ThreadModel) TableName() string { return "threads" }

type MessageModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	ThreadID   string `gorm:"not null;index;size:36"`
	SenderID   string `gorm:"not null"`
	ReceiverID string `gorm:"not null"`
	Content    string `gorm:"type:text;not null"`
	Status     string `gorm:"not null"`
	// Unix nanoseconds, portable keyset ordering across dialects
	CreatedAt int64 `gorm:"not null;index;autoCreateTime:nano"`
}

func (MessageModel) TableName() string { return "messages" }

// SQLRepository implements the thread resolver, the message store and the
// history reader on top of GORM (postgres or sqlite).
type SQLRepository struct {
	db       *gorm.DB
	log      *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(dsn string, log *slog.Logger) (*SQLRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return NewSQLRepository(db, log)
}

// OpenSQLite opens an embedded database at path (":memory:" for tests).
// SQLite allows a single writer, so the pool is reduced to one connection.
func OpenSQLite(path string, log *slog.Logger) (*SQLRepository, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return NewSQLRepository(db, log)
}

func gormConfig(log *slog.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.New(
			slog.NewLogLogger(log.Handler(), slog.LevelWarn),
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	}
}

// NewSQLRepository runs the auto-migrations on db.
func NewSQLRepository(db *gorm.DB, log *slog.Logger) (*SQLRepository, error) {
	if err := db.AutoMigrate(&ThreadModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &SQLRepository{db: db, log: log, validate: validator.New(), now: time.Now}, nil
}

func (s *SQLRepository) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLRepository) ResolveOrCreate(ctx context.Context, senderID, receiverID string) (chat.Thread, error) {
	thread, found, err := s.findThread(s.db.WithContext(ctx), chat.PairKey(senderID, receiverID))
	if err != nil {
		return chat.Thread{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	if found {
		return thread, nil
	}
	return chat.NewThread(senderID, receiverID, s.now()), nil
}

// Persist inserts the thread, when new, and the message in one transaction.
// A concurrent first message for the same pair hits the pair_key unique
// index: the insert is skipped and the message joins the winning thread.
func (s *SQLRepository) Persist(ctx context.Context, cmd chat.PersistCommand) (chat.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return chat.Message{}, fmt.Errorf("%w: %w", errors.ErrValidation, err)
	}

	message := chat.Message{
		ID:         uuid.New(),
		Content:    cmd.Content,
		SenderID:   cmd.SenderID,
		ReceiverID: cmd.ReceiverID,
		ThreadID:   cmd.Thread.ID,
		Status:     cmd.Status,
		CreatedAt:  s.now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cmd.Thread.IsNew || cmd.Thread.ID == uuid.Nil {
			threadID, err := s.ensureThread(tx, cmd)
			if err != nil {
				return err
			}
			message.ThreadID = threadID
		}
		return tx.Create(lo.ToPtr(toMessageModel(message))).Error
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

func (s *SQLRepository) ensureThread(tx *gorm.DB, cmd chat.PersistCommand) (uuid.UUID, error) {
	thread := cmd.Thread
	if thread.ID == uuid.Nil {
		thread = chat.NewThread(cmd.SenderID, cmd.ReceiverID, s.now())
	}
	thread.PairKey = chat.PairKey(cmd.SenderID, cmd.ReceiverID)

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pair_key"}},
		DoNothing: true,
	}).Create(lo.ToPtr(toThreadModel(thread))).Error
	if err != nil {
		return uuid.Nil, err
	}

	winner, found, err := s.findThread(tx, thread.PairKey)
	if err != nil {
		return uuid.Nil, err
	}
	if !found {
		return uuid.Nil, fmt.Errorf("thread %s vanished after insert", thread.PairKey)
	}
	if winner.ID != thread.ID {
		s.log.Debug("Thread already created concurrently, attaching message",
			"thread_id", winner.ID, "sender_id", cmd.SenderID)
	}
	return winner.ID, nil
}

func (s *SQLRepository) findThread(db *gorm.DB, key string) (chat.Thread, bool, error) {
	var model ThreadModel
	err := db.Where("pair_key = ?", key).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.Thread{}, false, nil
	}
	if err != nil {
		return chat.Thread{}, false, err
	}
	thread, err := toThread(model)
	return thread, err == nil, err
}

// GetThreadMessages uses keyset pagination on (created_at, id), newest first.
// The cursor has the same "{unixNano padded}:{id}" shape as the badger one.
func (s *SQLRepository) GetThreadMessages(ctx context.Context, userID, peerID string,
	cursor *string, limit int) (chat.Thread, []chat.Message, *string, error) {
	db := s.db.WithContext(ctx)
	thread, found, err := s.findThread(db, chat.PairKey(userID, peerID))
	if err != nil {
		return chat.Thread{}, nil, nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	if !found {
		return chat.Thread{}, []chat.Message{}, nil, nil
	}

	query := db.Where("thread_id = ?", thread.ID.String())
	if cursor != nil {
		at, id, err := parseCursor(*cursor)
		if err != nil {
			return chat.Thread{}, nil, nil, fmt.Errorf("%w: %w", errors.ErrValidation, err)
		}
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", at, at, id)
	}
	query = query.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit + 1)
	}

	var models []MessageModel
	if err = query.Find(&models).Error; err != nil {
		return chat.Thread{}, nil, nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}

	var next *string
	if limit > 0 && len(models) > limit {
		models = models[:limit]
		last := models[len(models)-1]
		next = lo.ToPtr(fmt.Sprintf("%019d:%s", last.CreatedAt, last.ID))
	}

	messages := make([]chat.Message, 0, len(models))
	for _, model := range models {
		message, err := toMessage(model)
		if err != nil {
			return chat.Thread{}, nil, nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
		}
		messages = append(messages, message)
	}
	return thread, messages, next, nil
}

func parseCursor(cursor string) (int64, string, error) {
	at, id, ok := strings.Cut(cursor, ":")
	if !ok {
		return 0, "", fmt.Errorf("malformed cursor %q", cursor)
	}
	nanos, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed cursor %q: %w", cursor, err)
	}
	return nanos, id, nil
}

func toThreadModel(thread chat.Thread) ThreadModel {
	return ThreadModel{
		ID:        thread.ID.String(),
		OwnerID:   thread.OwnerID,
		PairKey:   thread.PairKey,
		CreatedAt: thread.CreatedAt,
	}
}

func toThread(model ThreadModel) (chat.Thread, error) {
	id, err := uuid.Parse(model.ID)
	if err != nil {
		return chat.Thread{}, err
	}
	return chat.Thread{
		ID:        id,
		OwnerID:   model.OwnerID,
		PairKey:   model.PairKey,
		CreatedAt: model.CreatedAt.UTC(),
	}, nil
}

func toMessageModel(message chat.Message) MessageModel {
	return MessageModel{
		ID:         message.ID.String(),
		ThreadID:   message.ThreadID.String(),
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Content:    message.Content,
		Status:     string(message.Status),
		CreatedAt:  message.CreatedAt.UnixNano(),
	}
}

func toMessage(model MessageModel) (chat.Message, error) {
	id, err := uuid.Parse(model.ID)
	if err != nil {
		return chat.Message{}, err
	}
	threadID, err := uuid.Parse(model.ThreadID)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		ID:         id,
		Content:    model.Content,
		SenderID:   model.SenderID,
		ReceiverID: model.ReceiverID,
		ThreadID:   threadID,
		Status:     chat.DeliveryStatus(model.Status),
		CreatedAt:  time.Unix(0, model.CreatedAt).UTC(),
	}, nil
}
