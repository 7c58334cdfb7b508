// Package conversations tracks per-conversation context and mirrors each
// message into the memory store so dialogue stays searchable alongside
// everything else the assistant knows.
package conversations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/RajputVikashS5/Elixi-AI/memory"
)

// ErrNotFound is returned when a conversation ID matches nothing.
var ErrNotFound = errors.New("conversation not found")

// Message is one turn in a conversation.
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Context is the live state of a conversation plus derived figures.
type Context struct {
	ConversationID  string    `json:"conversation_id"`
	Topic           string    `json:"topic,omitempty"`
	Sentiment       string    `json:"sentiment,omitempty"`
	MessageCount    int       `json:"message_count"`
	DurationSeconds int64     `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdated     time.Time `json:"last_updated"`
	Messages        []Message `json:"messages,omitempty"`

	// RelatedMemories are memories recorded under this conversation.
	RelatedMemories []*memory.Record `json:"related_memories,omitempty"`
}

// Summary condenses a conversation for display or downstream learning.
type Summary struct {
	ConversationID  string         `json:"conversation_id"`
	Topic           string         `json:"topic,omitempty"`
	MessageCount    int            `json:"message_count"`
	Participants    map[string]int `json:"participants"` // role -> message count
	TotalWords      int            `json:"total_words"`
	Keywords        []string       `json:"keywords,omitempty"`
	DurationSeconds int64          `json:"duration_seconds"`
	StartedAt       time.Time      `json:"started_at"`
	LastActivity    time.Time      `json:"last_activity"`
}

// Store manages conversation contexts and their message history.
type Store struct {
	db       *sql.DB
	memories *memory.Store
	logger   zerolog.Logger
}

// NewStore creates a conversation store. The memory store is required; each
// message is mirrored into it.
func NewStore(db *sql.DB, memories *memory.Store, logger zerolog.Logger) (*Store, error) {
	if db == nil {
		return nil, memory.ErrNotConfigured
	}
	if memories == nil {
		return nil, errors.New("memory store is required")
	}
	return &Store{
		db:       db,
		memories: memories,
		logger:   logger.With().Str("component", "conversation_store").Logger(),
	}, nil
}

// AddMessage appends a message to a conversation, creating the conversation
// context on first use, and mirrors the message into the memory store tagged
// with the role so it participates in search and retention. The memory
// mirror failing does not fail the append.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string, metadata map[string]interface{}) error {
	s.logger.Debug().
		Str("method", "AddMessage").
		Str("conversation_id", conversationID).
		Str("role", role).
		Msg("called")

	if conversationID == "" {
		return errors.New("conversation id is empty")
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("message content is empty")
	}
	if role == "" {
		role = "user"
	}

	nowUnix := time.Now().Unix()
	upsert := `
INSERT INTO conversation_contexts (conversation_id, created_at, last_updated)
VALUES (?, ?, ?)
ON CONFLICT(conversation_id) DO UPDATE SET last_updated = excluded.last_updated`
	if _, err := s.db.ExecContext(ctx, upsert, conversationID, nowUnix, nowUnix); err != nil {
		return fmt.Errorf("upsert conversation context: %w", err)
	}

	var metadataJSON interface{}
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		metadataJSON = string(b)
	}

	insert := memory.StatementBuilder().
		Insert("conversation_messages").
		Columns("conversation_id", "role", "content", "metadata_json", "created_at").
		Values(conversationID, role, content, metadataJSON, nowUnix)
	queryStr, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build message insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = s.memories.Save(ctx, memory.TypeConversation, content,
		map[string]interface{}{"conversation_id": conversationID, "role": role},
		[]string{"conversation", role},
		memory.ImportanceMedium)
	if err != nil {
		s.logger.Warn().
			Str("method", "AddMessage").
			Str("conversation_id", conversationID).
			Err(err).
			Msg("Failed to mirror message into memory store")
	}
	return nil
}

// SetTopic records or updates the conversation's topic.
func (s *Store) SetTopic(ctx context.Context, conversationID, topic string) error {
	return s.updateField(ctx, conversationID, "topic", topic)
}

// SetSentiment records or updates the conversation's overall sentiment.
func (s *Store) SetSentiment(ctx context.Context, conversationID, sentiment string) error {
	return s.updateField(ctx, conversationID, "sentiment", sentiment)
}

func (s *Store) updateField(ctx context.Context, conversationID, column, value string) error {
	update := memory.StatementBuilder().
		Update("conversation_contexts").
		Set(column, value).
		Set("last_updated", time.Now().Unix()).
		Where(sq.Eq{"conversation_id": conversationID})
	queryStr, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetContext loads a conversation with its messages, derived counts and
// related memories.
func (s *Store) GetContext(ctx context.Context, conversationID string) (*Context, error) {
	s.logger.Debug().
		Str("method", "GetContext").
		Str("conversation_id", conversationID).
		Msg("called")

	row := s.db.QueryRowContext(ctx, `
SELECT conversation_id, COALESCE(topic, ''), COALESCE(sentiment, ''), created_at, last_updated
FROM conversation_contexts
WHERE conversation_id = ?`, conversationID)

	var (
		cc                     Context
		createdAt, lastUpdated int64
	)
	if err := row.Scan(&cc.ConversationID, &cc.Topic, &cc.Sentiment, &createdAt, &lastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	cc.CreatedAt = time.Unix(createdAt, 0)
	cc.LastUpdated = time.Unix(lastUpdated, 0)

	messages, err := s.messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	cc.Messages = messages
	cc.MessageCount = len(messages)
	if len(messages) > 1 {
		cc.DurationSeconds = int64(messages[len(messages)-1].CreatedAt.Sub(messages[0].CreatedAt).Seconds())
	}

	related, err := s.memories.SearchRelated(ctx, conversationID, "", 20)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load related memories")
	} else {
		cc.RelatedMemories = related
	}
	return &cc, nil
}

// Summarize builds a summary of a conversation: per-role message counts,
// total word count, top keywords and duration.
func (s *Store) Summarize(ctx context.Context, conversationID string) (*Summary, error) {
	cc, err := s.GetContext(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ConversationID:  cc.ConversationID,
		Topic:           cc.Topic,
		MessageCount:    cc.MessageCount,
		Participants:    make(map[string]int),
		DurationSeconds: cc.DurationSeconds,
		StartedAt:       cc.CreatedAt,
		LastActivity:    cc.LastUpdated,
	}

	var corpus strings.Builder
	for _, msg := range cc.Messages {
		summary.Participants[msg.Role]++
		summary.TotalWords += len(strings.Fields(msg.Content))
		corpus.WriteString(msg.Content)
		corpus.WriteString(" ")
	}
	summary.Keywords = extractKeywords(corpus.String(), 10)
	return summary, nil
}

func (s *Store) messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT role, content, metadata_json, created_at
FROM conversation_messages
WHERE conversation_id = ?
ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var messages []Message
	for rows.Next() {
		var (
			msg          Message
			metadataJSON sql.NullString
			createdAt    int64
		)
		if err := rows.Scan(&msg.Role, &msg.Content, &metadataJSON, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = time.Unix(createdAt, 0)
		if metadataJSON.Valid && metadataJSON.String != "" {
			_ = json.Unmarshal([]byte(metadataJSON.String), &msg.Metadata)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

var keywordPattern = regexp.MustCompile(`[a-zA-Z]{6,}`)

// extractKeywords returns the most frequent alphabetic words longer than
// five characters, most frequent first.
func extractKeywords(text string, limit int) []string {
	counts := make(map[string]int)
	for _, word := range keywordPattern.FindAllString(strings.ToLower(text), -1) {
		counts[word]++
	}
	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}
