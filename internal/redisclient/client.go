package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"market-service/internal/errs"
	"market-service/internal/models"
	"market-service/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/upsert_link.lua
var upsertLinkScript string

//go:embed scripts/clear_unread.lua
var clearUnreadScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

var (
	_ repository.InboxStore    = (*Client)(nil)
	_ repository.TypingStore   = (*Client)(nil)
	_ repository.PresenceStore = (*Client)(nil)
	_ repository.WishlistStore = (*Client)(nil)
)

const activityKey = "user_activity"

type Client struct {
	rdb          *redis.Client
	upsertScript  *redis.Script
	clearScript   *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		upsertScript:  redis.NewScript(upsertLinkScript),
		clearScript:   redis.NewScript(clearUnreadScript),
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func inboxKey(userID string) string { return fmt.Sprintf("user_chats:%s", userID) }

func typingKey(conversationID string) string { return fmt.Sprintf("typing_status:%s", conversationID) }

func wishlistKey(userID string) string { return fmt.Sprintf("heart:%s", userID) }

// UpsertLink atomically creates or bumps a user's inbox link using Lua script
func (c *Client) UpsertLink(ctx context.Context, userID string, link models.InboxLink, isRecipient bool) (models.InboxLink, error) {
	payload, err := json.Marshal(link)
	if err != nil {
		return models.InboxLink{}, fmt.Errorf("failed to marshal inbox link: %w", err)
	}

	recipient := "0"
	if isRecipient {
		recipient = "1"
	}

	result, err := c.upsertScript.Run(ctx, c.rdb,
		[]string{inboxKey(userID)}, link.ConversationID, string(payload), recipient).Text()
	if err != nil {
		return models.InboxLink{}, fmt.Errorf("upsert link script failed: %w", err)
	}

	var stored models.InboxLink
	if err := json.Unmarshal([]byte(result), &stored); err != nil {
		return models.InboxLink{}, fmt.Errorf("malformed inbox link: %w", err)
	}
	return stored, nil
}

// GetLink retrieves a single inbox link
func (c *Client) GetLink(ctx context.Context, userID, conversationID string) (models.InboxLink, error) {
	raw, err := c.rdb.HGet(ctx, inboxKey(userID), conversationID).Result()
	if errors.Is(err, redis.Nil) {
		return models.InboxLink{}, fmt.Errorf("conversation %q: %w", conversationID, errs.ErrNotFound)
	}
	if err != nil {
		return models.InboxLink{}, err
	}

	var link models.InboxLink
	if err := json.Unmarshal([]byte(raw), &link); err != nil {
		return models.InboxLink{}, fmt.Errorf("malformed inbox link: %w", err)
	}
	return link, nil
}

// ListLinks retrieves a user's inbox, most recently updated first. Malformed
// entries are skipped.
func (c *Client) ListLinks(ctx context.Context, userID string) ([]models.InboxLink, error) {
	raw, err := c.rdb.HGetAll(ctx, inboxKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	links := make([]models.InboxLink, 0, len(raw))
	for conversationID, value := range raw {
		var link models.InboxLink
		if err := json.Unmarshal([]byte(value), &link); err != nil {
			continue
		}
		if link.ConversationID == "" {
			link.ConversationID = conversationID
		}
		links = append(links, link)
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].UpdatedAt != links[j].UpdatedAt {
			return links[i].UpdatedAt > links[j].UpdatedAt
		}
		return links[i].ConversationID < links[j].ConversationID
	})
	return links, nil
}

// ClearUnread atomically resets a link's unread count
func (c *Client) ClearUnread(ctx context.Context, userID, conversationID string) error {
	if err := c.clearScript.Run(ctx, c.rdb, []string{inboxKey(userID)}, conversationID).Err(); err != nil {
		return fmt.Errorf("clear unread script failed: %w", err)
	}
	return nil
}

// DeleteLink removes only this user's inbox link
func (c *Client) DeleteLink(ctx context.Context, userID, conversationID string) error {
	return c.rdb.HDel(ctx, inboxKey(userID), conversationID).Err()
}

// SetTyping marks a user as typing until ttl elapses
func (c *Client) SetTyping(ctx context.Context, conversationID, userID string, ttl time.Duration) error {
	key := typingKey(conversationID)
	expires := time.Now().Add(ttl).UnixMilli()

	pipe := c.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(expires), Member: userID})
	pipe.Expire(ctx, key, ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// ClearTyping removes a user's typing marker
func (c *Client) ClearTyping(ctx context.Context, conversationID, userID string) error {
	return c.rdb.ZRem(ctx, typingKey(conversationID), userID).Err()
}

// TypingUsers lists users whose typing marker has not expired
func (c *Client) TypingUsers(ctx context.Context, conversationID string) ([]string, error) {
	key := typingKey(conversationID)
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	pipe := c.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", now)
	members := pipe.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "(" + now, Max: "+inf"})

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	users := members.Val()
	sort.Strings(users)
	return users, nil
}

// TouchActivity records a user's last activity in epoch millis
func (c *Client) TouchActivity(ctx context.Context, userID string, at time.Time) error {
	return c.rdb.HSet(ctx, activityKey, userID, at.UnixMilli()).Err()
}

// LastActive returns a user's last activity
func (c *Client) LastActive(ctx context.Context, userID string) (time.Time, error) {
	millis, err := c.rdb.HGet(ctx, activityKey, userID).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

// SetInterest adds or removes an item from a user's wishlist
func (c *Client) SetInterest(ctx context.Context, userID, itemName string, interested bool) error {
	if interested {
		return c.rdb.SAdd(ctx, wishlistKey(userID), itemName).Err()
	}
	return c.rdb.SRem(ctx, wishlistKey(userID), itemName).Err()
}

// IsInterested reports whether an item is on a user's wishlist
func (c *Client) IsInterested(ctx context.Context, userID, itemName string) (bool, error) {
	return c.rdb.SIsMember(ctx, wishlistKey(userID), itemName).Result()
}

// ListInterests lists a user's wishlist
func (c *Client) ListInterests(ctx context.Context, userID string) ([]string, error) {
	names, err := c.rdb.SMembers(ctx, wishlistKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// SetIdempotencyKey stores an idempotency key with TTL. It returns false when
// the key was already present.
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Result()
}

// ForgetIdempotencyKey removes an idempotency key
func (c *Client) ForgetIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// AcquireLock acquires a distributed lock. The returned token is needed to
// release it.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock if it is still held with token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}
