package store

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoLib "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
	"github.com/Laisky/laisky-blog-moderation/library/db/mongo"
	"github.com/Laisky/laisky-blog-moderation/library/log"
)

const collComments = "moderation_comments"

// commentDocument is the MongoDB document of a comment under moderation.
type commentDocument struct {
	ID            primitive.ObjectID    `bson:"_id,omitempty"`
	PostName      string                `bson:"post_name"`
	Author        string                `bson:"author"`
	Email         string                `bson:"email"`
	Text          string                `bson:"text"`
	State         string                `bson:"state"`
	SpamScore     *int                  `bson:"spam_score,omitempty"`
	AuthorContext authorContextDocument `bson:"author_context"`
	PhotoFilename string                `bson:"photo_filename,omitempty"`
	CreatedAt     time.Time             `bson:"created_at"`
	UpdatedAt     time.Time             `bson:"updated_at"`
}

type authorContextDocument struct {
	UserIP    string `bson:"user_ip"`
	UserAgent string `bson:"user_agent"`
	Referrer  string `bson:"referrer"`
	Permalink string `bson:"permalink"`
}

func documentFromComment(c *model.Comment) *commentDocument {
	doc := &commentDocument{
		PostName:  c.PostName,
		Author:    c.Author,
		Email:     c.Email,
		Text:      c.Text,
		State:     string(c.State),
		SpamScore: c.SpamScore,
		AuthorContext: authorContextDocument{
			UserIP:    c.AuthorContext.UserIP,
			UserAgent: c.AuthorContext.UserAgent,
			Referrer:  c.AuthorContext.Referrer,
			Permalink: c.AuthorContext.Permalink,
		},
		PhotoFilename: c.PhotoFilename,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if oid, err := primitive.ObjectIDFromHex(c.ID); err == nil {
		doc.ID = oid
	}
	return doc
}

func (d *commentDocument) toComment() *model.Comment {
	return &model.Comment{
		ID:        d.ID.Hex(),
		PostName:  d.PostName,
		Author:    d.Author,
		Email:     d.Email,
		Text:      d.Text,
		State:     workflow.State(d.State),
		SpamScore: d.SpamScore,
		AuthorContext: model.AuthorContext{
			UserIP:    d.AuthorContext.UserIP,
			UserAgent: d.AuthorContext.UserAgent,
			Referrer:  d.AuthorContext.Referrer,
			Permalink: d.AuthorContext.Permalink,
		},
		PhotoFilename: d.PhotoFilename,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// casFilter matches the comment only while it is still in the expected state.
func casFilter(id primitive.ObjectID, expected workflow.State) bson.M {
	return bson.M{"_id": id, "state": string(expected)}
}

func stateUpdate(c *model.Comment, now time.Time) bson.M {
	set := bson.M{
		"state":      string(c.State),
		"updated_at": now,
	}
	if c.SpamScore != nil {
		set["spam_score"] = *c.SpamScore
	}
	return bson.M{"$set": set}
}

func statesFilter(states []workflow.State) bson.M {
	names := make([]string, 0, len(states))
	for _, st := range states {
		names = append(names, string(st))
	}
	return bson.M{"state": bson.M{"$in": names}}
}

// Mongo is a CommentStore backed by the blog's MongoDB.
type Mongo struct {
	db     mongo.DB
	logger logSDK.Logger
	clock  Clock
}

// NewMongo creates the store and ensures its indexes.
func NewMongo(ctx context.Context, db mongo.DB, logger logSDK.Logger, clock Clock) (*Mongo, error) {
	if db == nil {
		return nil, errors.New("mongo db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("comment_store_mongo")
	}
	if clock == nil {
		clock = defaultClock
	}

	s := &Mongo{db: db, logger: logger, clock: clock}
	if _, err := s.col().Indexes().CreateOne(ctx, mongoLib.IndexModel{
		Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return nil, errors.Wrap(err, "create comment state index")
	}

	return s, nil
}

func (s *Mongo) col() *mongoLib.Collection {
	return s.db.GetCol(collComments)
}

// Create implements CommentStore.
func (s *Mongo) Create(ctx context.Context, c *model.Comment) error {
	now := s.clock()
	c.CreatedAt, c.UpdatedAt = now, now

	doc := documentFromComment(c)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}

	if _, err := s.col().InsertOne(ctx, doc); err != nil {
		return errors.Wrap(err, "insert comment")
	}

	c.ID = doc.ID.Hex()
	s.logger.Debug("comment created",
		zap.String("comment_id", c.ID),
		zap.String("post", c.PostName))
	return nil
}

// Get implements CommentStore.
func (s *Mongo) Get(ctx context.Context, id string) (*model.Comment, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// ids that are not ObjectIDs can never have been stored here
		return nil, ErrCommentNotFound
	}

	doc := new(commentDocument)
	if err = s.col().FindOne(ctx, bson.M{"_id": oid}).Decode(doc); err != nil {
		if mongo.NotFound(err) {
			return nil, ErrCommentNotFound
		}
		return nil, errors.Wrapf(err, "load comment %s", id)
	}

	return doc.toComment(), nil
}

// Save implements CommentStore. Only moderation-owned fields are written.
func (s *Mongo) Save(ctx context.Context, c *model.Comment, expected workflow.State) error {
	oid, err := primitive.ObjectIDFromHex(c.ID)
	if err != nil {
		return ErrCommentNotFound
	}

	now := s.clock()
	res, err := s.col().UpdateOne(ctx, casFilter(oid, expected), stateUpdate(c, now))
	if err != nil {
		return errors.Wrapf(err, "update comment %s", c.ID)
	}

	if res.MatchedCount == 0 {
		n, err := s.col().CountDocuments(ctx, bson.M{"_id": oid})
		if err != nil {
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
func (s *Mongo) ListByStates(ctx context.Context, states []workflow.State, limit int) ([]*model.Comment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(normalizeLimit(limit)))

	cursor, err := s.col().Find(ctx, statesFilter(states), opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find comments")
	}
	defer cursor.Close(ctx)

	var docs []*commentDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "failed to decode comments")
	}

	comments := make([]*model.Comment, 0, len(docs))
	for _, doc := range docs {
		comments = append(comments, doc.toComment())
	}
	return comments, nil
}
