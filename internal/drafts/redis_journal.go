// Package drafts journals unsaved editor content in Redis so it survives a
// crash between a keystroke and the next successful autosave.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long an abandoned draft is kept.
const DefaultTTL = 7 * 24 * time.Hour

// Draft is the journaled content of one page.
type Draft struct {
	DocID   string    `json:"doc_id"`
	Content string    `json:"content"`
	SavedAt time.Time `json:"saved_at"`
}

// RedisJournal stores one draft per page under draft:<scope>:<docId>.
type RedisJournal struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisJournal connects to redisURL and verifies the connection.
func NewRedisJournal(redisURL, scopeID string) (*RedisJournal, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisJournalWithClient(client, scopeID), nil
}

// NewRedisJournalWithClient builds a journal from an existing client.
func NewRedisJournalWithClient(client *redis.Client, scopeID string) *RedisJournal {
	return &RedisJournal{
		client: client,
		prefix: "draft:" + scopeID + ":",
		ttl:    DefaultTTL,
	}
}

func (j *RedisJournal) key(docID string) string {
	return j.prefix + docID
}

func (j *RedisJournal) SaveDraft(ctx context.Context, docID, content string) error {
	payload, err := json.Marshal(Draft{DocID: docID, Content: content, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := j.client.Set(ctx, j.key(docID), payload, j.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// LoadDraft returns the journaled draft, with ok false when none exists.
func (j *RedisJournal) LoadDraft(ctx context.Context, docID string) (Draft, bool, error) {
	payload, err := j.client.Get(ctx, j.key(docID)).Result()
	if errors.Is(err, redis.Nil) {
		return Draft{}, false, nil
	}
	if err != nil {
		return Draft{}, false, fmt.Errorf("load draft: %w", err)
	}

	var draft Draft
	if err := json.Unmarshal([]byte(payload), &draft); err != nil {
		return Draft{}, false, fmt.Errorf("unmarshal draft: %w", err)
	}
	return draft, true, nil
}

func (j *RedisJournal) ClearDraft(ctx context.Context, docID string) error {
	if err := j.client.Del(ctx, j.key(docID)).Err(); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

func (j *RedisJournal) Close() error {
	return j.client.Close()
}

func (j *RedisJournal) Ping(ctx context.Context) error {
	return j.client.Ping(ctx).Err()
}
