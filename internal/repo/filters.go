package repo

import (
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/db"
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Field names in the messages collection.
const (
	fieldID         = "_id"
	fieldSenderID   = "sender_id"
	fieldReceiverID = "receiver_id"
	fieldBookID     = "book_id"
	fieldCreatedAt  = "created_at"
	fieldRead       = "read"
)

// conversationFilter matches every message exchanged between me and the
// counterparty inside the key's book context.
func conversationFilter(me model.UserID, key model.ConversationKey) bson.M {
	return db.NewFilter().
		Or(
			bson.M{fieldSenderID: string(me), fieldReceiverID: string(key.OtherUserID)},
			bson.M{fieldSenderID: string(key.OtherUserID), fieldReceiverID: string(me)},
		).
		Eq(fieldBookID, key.BookID).
		Build()
}

// unreadFilter matches messages the counterparty sent to reader that are not read yet.
func unreadFilter(reader model.UserID, key model.ConversationKey) bson.M {
	return db.NewFilter().
		Eq(fieldSenderID, string(key.OtherUserID)).
		Eq(fieldReceiverID, string(reader)).
		Eq(fieldBookID, key.BookID).
		Eq(fieldRead, false).
		Build()
}

// markReadFilter restricts a bulk update to the given ids that are still unread,
// which keeps the false->true transition one-way and the update idempotent.
func markReadFilter(ids []primitive.ObjectID) bson.M {
	return db.NewFilter().
		In(fieldID, ids).
		Eq(fieldRead, false).
		Build()
}

// conversationPipeline groups a user's messages by (counterparty, book) and
// produces one summary per conversation, newest first.
func conversationPipeline(me model.UserID) mongo.Pipeline {
	user := string(me)
	return mongo.Pipeline{
		{{Key: "$match", Value: db.NewFilter().Or(
			bson.M{fieldSenderID: user},
			bson.M{fieldReceiverID: user},
		).Build()}},
		{{Key: "$sort", Value: bson.D{{Key: fieldCreatedAt, Value: -1}, {Key: fieldID, Value: -1}}}},
		{{Key: "$addFields", Value: bson.M{
			"other_user_id": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$" + fieldSenderID, user}},
				"$" + fieldReceiverID,
				"$" + fieldSenderID,
			}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":             bson.M{"other": "$other_user_id", "book": "$" + fieldBookID},
			"last_message":    bson.M{"$first": "$content"},
			"last_message_at": bson.M{"$first": "$" + fieldCreatedAt},
			"last_sender_id":  bson.M{"$first": "$" + fieldSenderID},
			"unread_count": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$" + fieldReceiverID, user}},
					bson.M{"$eq": bson.A{"$" + fieldRead, false}},
				}},
				1,
				0,
			}}},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":             0,
			"other_user_id":   "$_id.other",
			"book_id":         "$_id.book",
			"last_message":    1,
			"last_message_at": 1,
			"last_sender_id":  1,
			"unread_count":    1,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "last_message_at", Value: -1}}}},
	}
}

// messageIndexes back the history, unread and aggregation queries.
func messageIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: fieldSenderID, Value: 1}, {Key: fieldReceiverID, Value: 1}, {Key: fieldBookID, Value: 1}, {Key: fieldCreatedAt, Value: -1}}},
		{Keys: bson.D{{Key: fieldReceiverID, Value: 1}, {Key: fieldRead, Value: 1}}},
	}
}
