package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gatherly/chatkit/internal/models"
)

type MongoStore struct {
	convCol    *mongo.Collection
	msgCol     *mongo.Collection
	receiptCol *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		convCol:    db.Collection("conversations"),
		msgCol:     db.Collection("messages"),
		receiptCol: db.Collection("read_receipts"),
	}
}

// EnsureIndexes creates the indexes the adapter relies on. The unique
// member_key index is what makes conversation creation race-free: two
// concurrent upserts for the same pair collapse into one document.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.convCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "member_key", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"is_group": false}),
	})
	if err != nil {
		return err
	}
	_, err = s.msgCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return err
	}
	_, err = s.receiptCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type mongoConversation struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Members      []string           `bson:"members"`
	MemberKey    string             `bson:"member_key"`
	IsGroup      bool               `bson:"is_group"`
	LastMessage  *mongoMessage      `bson:"last_message,omitempty"`
	LastActivity time.Time          `bson:"last_activity"`
	CreatedAt    time.Time          `bson:"created_at"`
}

type mongoMessage struct {
	ID             primitive.ObjectID    `bson:"_id,omitempty"`
	ConversationID string                `bson:"conversation_id"`
	SenderID       string                `bson:"sender_id"`
	ReceiverID     string                `bson:"receiver_id"`
	Content        string                `bson:"content"`
	Type           models.MessageType    `bson:"type"`
	DeliveryStatus models.DeliveryStatus `bson:"delivery_status"`
	Media          *models.Media         `bson:"media,omitempty"`
	CreatedAt      time.Time             `bson:"created_at"`
}

func (d *mongoConversation) toModel() *models.Conversation {
	c := &models.Conversation{
		ID:           d.ID.Hex(),
		Members:      d.Members,
		MemberKey:    d.MemberKey,
		IsGroup:      d.IsGroup,
		LastActivity: d.LastActivity,
		CreatedAt:    d.CreatedAt,
	}
	if d.LastMessage != nil {
		c.LastMessage = d.LastMessage.toModel()
	}
	return c
}

func (d *mongoMessage) toModel() *models.Message {
	return &models.Message{
		ID:               d.ID.Hex(),
		ConversationID:   d.ConversationID,
		SenderID:         d.SenderID,
		ReceiverID:       d.ReceiverID,
		EncryptedContent: d.Content,
		Type:             d.Type,
		DeliveryStatus:   d.DeliveryStatus,
		Media:            d.Media,
		CreatedAt:        d.CreatedAt,
	}
}

func toMongoMessage(m *models.Message) (*mongoMessage, error) {
	doc := &mongoMessage{
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.EncryptedContent,
		Type:           m.Type,
		DeliveryStatus: m.DeliveryStatus,
		Media:          m.Media,
		CreatedAt:      m.CreatedAt,
	}
	if m.ID != "" && !m.Pending() {
		oid, err := primitive.ObjectIDFromHex(m.ID)
		if err != nil {
			return nil, ErrInvalidInput
		}
		doc.ID = oid
	}
	return doc, nil
}

func (s *MongoStore) FindOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	if userA == "" || userB == "" || userA == userB {
		return nil, ErrInvalidInput
	}
	now := time.Now().UTC()
	key := models.MemberKey(userA, userB)
	update := bson.M{"$setOnInsert": bson.M{
		"members":       []string{userA, userB},
		"member_key":    key,
		"is_group":      false,
		"last_activity": now,
		"created_at":    now,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc mongoConversation
	err := s.convCol.FindOneAndUpdate(ctx, bson.M{"member_key": key, "is_group": false}, update, opts).Decode(&doc)
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (s *MongoStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc mongoConversation
	if err := s.convCol.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.toModel(), nil
}

func (s *MongoStore) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}})
	cur, err := s.convCol.Find(ctx, bson.M{"members": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*models.Conversation
	for cur.Next(ctx) {
		var doc mongoConversation
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toModel())
	}
	return out, cur.Err()
}

func (s *MongoStore) TouchConversation(ctx context.Context, id string, last *models.Message) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	set := bson.M{"last_activity": time.Now().UTC()}
	if last != nil {
		doc, err := toMongoMessage(last)
		if err != nil {
			return err
		}
		set["last_message"] = doc
	}
	_, err = s.convCol.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	return err
}

func (s *MongoStore) InsertMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	out := m.Clone()
	out.ID = ""
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	if out.DeliveryStatus == "" {
		out.DeliveryStatus = models.StatusSending
	}
	doc, err := toMongoMessage(out)
	if err != nil {
		return nil, err
	}
	res, err := s.msgCol.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	out.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return out, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.msgCol.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	return decodeMessages(ctx, cur)
}

func (s *MongoStore) ListUnreadMessages(ctx context.Context, conversationID, receiverID string) ([]*models.Message, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"receiver_id":     receiverID,
		"delivery_status": bson.M{"$ne": models.StatusRead},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.msgCol.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	return decodeMessages(ctx, cur)
}

func (s *MongoStore) UpdateMessageStatus(ctx context.Context, messageID string, status models.DeliveryStatus) (bool, error) {
	if !status.Valid() {
		return false, ErrInvalidInput
	}
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return false, ErrNotFound
	}
	// rank guard: only rows still behind the target status match
	filter := bson.M{
		"_id":             oid,
		"delivery_status": bson.M{"$in": models.StatusesBelow(status)},
	}
	res, err := s.msgCol.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"delivery_status": status}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *MongoStore) CountUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	return s.msgCol.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"receiver_id":     userID,
		"delivery_status": bson.M{"$ne": models.StatusRead},
	})
}

func (s *MongoStore) UpsertReadReceipt(ctx context.Context, r *models.ReadReceipt) error {
	filter := bson.M{"message_id": r.MessageID, "user_id": r.UserID}
	update := bson.M{"$setOnInsert": bson.M{"read_at": r.ReadAt}}
	_, err := s.receiptCol.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func decodeMessages(ctx context.Context, cur *mongo.Cursor) ([]*models.Message, error) {
	var out []*models.Message
	for cur.Next(ctx) {
		var doc mongoMessage
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toModel())
	}
	return out, cur.Err()
}
