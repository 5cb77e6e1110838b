package store

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

// CommentRecord is the SQL row of a comment under moderation.
type CommentRecord struct {
	ID            string    `gorm:"type:varchar(36);primaryKey"`
	PostName      string    `gorm:"type:varchar(255);not null;index"`
	Author        string    `gorm:"type:varchar(255);not null"`
	Email         string    `gorm:"type:varchar(255);not null"`
	Text          string    `gorm:"type:text;not null"`
	State         string    `gorm:"type:varchar(32);not null;index"`
	SpamScore     *int
	UserIP        string    `gorm:"type:varchar(64)"`
	UserAgent     string    `gorm:"type:text"`
	Referrer      string    `gorm:"type:text"`
	Permalink     string    `gorm:"type:text"`
	PhotoFilename string    `gorm:"type:varchar(255)"`
	CreatedAt     time.Time `gorm:"index"`
	UpdatedAt     time.Time
}

// TableName pins the table name regardless of naming strategy.
func (CommentRecord) TableName() string {
	return "moderation_comments"
}

func recordFromComment(c *model.Comment) *CommentRecord {
	return &CommentRecord{
		ID:            c.ID,
		PostName:      c.PostName,
		Author:        c.Author,
		Email:         c.Email,
		Text:          c.Text,
		State:         string(c.State),
		SpamScore:     c.SpamScore,
		UserIP:        c.AuthorContext.UserIP,
		UserAgent:     c.AuthorContext.UserAgent,
		Referrer:      c.AuthorContext.Referrer,
		Permalink:     c.AuthorContext.Permalink,
		PhotoFilename: c.PhotoFilename,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (r *CommentRecord) toComment() *model.Comment {
	return &model.Comment{
		ID:        r.ID,
		PostName:  r.PostName,
		Author:    r.Author,
		Email:     r.Email,
		Text:      r.Text,
		State:     workflow.State(r.State),
		SpamScore: r.SpamScore,
		AuthorContext: model.AuthorContext{
			UserIP:    r.UserIP,
			UserAgent: r.UserAgent,
			Referrer:  r.Referrer,
			Permalink: r.Permalink,
		},
		PhotoFilename: r.PhotoFilename,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Migrate creates or updates the comment table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&CommentRecord{}); err != nil {
		return errors.Wrap(err, "auto migrate moderation comments")
	}
	return nil
}

// Gorm is a CommentStore backed by postgres or sqlite through gorm.
type Gorm struct {
	db     *gorm.DB
	logger logSDK.Logger
	clock  Clock
}

// NewGorm constructs the store and performs required migrations.
func NewGorm(db *gorm.DB, logger logSDK.Logger, clock Clock) (*Gorm, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("comment_store_sql")
	}
	if clock == nil {
		clock = defaultClock
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return &Gorm{db: db, logger: logger, clock: clock}, nil
}

// DB returns the underlying connection, for tables that live next to the comments.
func (s *Gorm) DB() *gorm.DB {
	return s.db
}

// Create implements CommentStore.
func (s *Gorm) Create(ctx context.Context, c *model.Comment) error {
	if c.ID == "" {
		c.ID = gutils.UUID7()
	}
	now := s.clock()
	c.CreatedAt, c.UpdatedAt = now, now

	if err := s.db.WithContext(ctx).Create(recordFromComment(c)).Error; err != nil {
		return errors.Wrap(err, "insert comment")
	}

	s.logger.Debug("comment created",
		zap.String("comment_id", c.ID),
		zap.String("post", c.PostName))
	return nil
}

// Get implements CommentStore.
func (s *Gorm) Get(ctx context.Context, id string) (*model.Comment, error) {
	var rec CommentRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommentNotFound
		}
		return nil, errors.Wrapf(err, "load comment %s", id)
	}

	return rec.toComment(), nil
}

// Save implements CommentStore. Only moderation-owned columns are written.
func (s *Gorm) Save(ctx context.Context, c *model.Comment, expected workflow.State) error {
	now := s.clock()
	res := s.db.WithContext(ctx).Model(&CommentRecord{}).
		Where("id = ? AND state = ?", c.ID, string(expected)).
		Updates(map[string]any{
			"state":      string(c.State),
			"spam_score": c.SpamScore,
			"updated_at": now,
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update comment %s", c.ID)
	}

	if res.RowsAffected == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&CommentRecord{}).
			Where("id = ?", c.ID).
			Count(&n).Error; err != nil {
			return errors.Wrapf(err, "check comment %s", c.ID)
		}
		if n == 0 {
			return ErrCommentNotFound
		}
		return ErrStateConflict
	}

	c.UpdatedAt = now
	return nil
}

// ListByStates implements CommentStore.
func (s *Gorm) ListByStates(ctx context.Context, states []workflow.State, limit int) ([]*model.Comment, error) {
	names := make([]string, 0, len(states))
	for _, st := range states {
		names = append(names, string(st))
	}

	var recs []CommentRecord
	if err := s.db.WithContext(ctx).
		Where("state IN ?", names).
		Order("created_at ASC, id ASC").
		Limit(normalizeLimit(limit)).
		Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "list comments by state")
	}

	comments := make([]*model.Comment, 0, len(recs))
	for i := range recs {
		comments = append(comments, recs[i].toComment())
	}
	return comments, nil
}
