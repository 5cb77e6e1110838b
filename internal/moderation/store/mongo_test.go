package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Laisky/laisky-blog-moderation/internal/moderation/model"
	"github.com/Laisky/laisky-blog-moderation/internal/moderation/workflow"
)

func TestCommentDocumentRoundTrip(t *testing.T) {
	oid := primitive.NewObjectID()
	c := newComment("hello")
	c.ID = oid.Hex()
	c.SetSpamScore(model.ScoreHam)
	c.CreatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	doc := documentFromComment(c)
	require.Equal(t, oid, doc.ID)
	require.Equal(t, "submitted", doc.State)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	decoded := new(commentDocument)
	require.NoError(t, bson.Unmarshal(raw, decoded))
	require.Equal(t, c, decoded.toComment())
}

func TestCommentDocumentIgnoresForeignID(t *testing.T) {
	c := newComment("hello")
	c.ID = "not-an-object-id"
	require.True(t, documentFromComment(c).ID.IsZero())
}

func TestMongoFilters(t *testing.T) {
	oid := primitive.NewObjectID()
	require.Equal(t, bson.M{"_id": oid, "state": "accepted"},
		casFilter(oid, workflow.StateAccepted))

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := newComment("p")
	c.SetState(workflow.StateReady)
	upd := stateUpdate(c, now)
	require.Equal(t, bson.M{"$set": bson.M{"state": "ready", "updated_at": now}}, upd)

	c.SetSpamScore(model.ScoreClean)
	require.Equal(t, 0, stateUpdate(c, now)["$set"].(bson.M)["spam_score"])

	require.Equal(t,
		bson.M{"state": bson.M{"$in": []string{"ham_ready", "ready"}}},
		statesFilter([]workflow.State{workflow.StateHamReady, workflow.StateReady}))
}
