package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lumenwork/permissions"
	"github.com/redis/go-redis/v9"
)

// RedisRoleAttributeStore keeps role assignments in a set per user and the
// attribute bag as a JSON value. Suitable when several engine instances share
// one assignment source.
type RedisRoleAttributeStore struct {
	client *redis.Client
	prefix string
}

func NewRedisRoleAttributeStore(client *redis.Client, prefix string) *RedisRoleAttributeStore {
	if prefix == "" {
		prefix = "permissions"
	}
	return &RedisRoleAttributeStore{client: client, prefix: prefix}
}

func (s *RedisRoleAttributeStore) rolesKey(userID string) string {
	return s.prefix + ":roles:" + userID
}

func (s *RedisRoleAttributeStore) attrsKey(userID string) string {
	return s.prefix + ":attrs:" + userID
}

func (s *RedisRoleAttributeStore) GetRoleAssignments(ctx context.Context, userID string) ([]permissions.RoleAssignment, error) {
	members, err := s.client.SMembers(ctx, s.rolesKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read roles for %s: %w", userID, err)
	}
	out := make([]permissions.RoleAssignment, 0, len(members))
	for _, m := range members {
		var a permissions.RoleAssignment
		if err := json.Unmarshal([]byte(m), &a); err != nil {
			return nil, fmt.Errorf("decode role assignment for %s: %w", userID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *RedisRoleAttributeStore) GetUserAttributes(ctx context.Context, userID string) (*permissions.UserAttributes, error) {
	raw, err := s.client.Get(ctx, s.attrsKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return permissions.NewUserAttributes(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read attributes for %s: %w", userID, err)
	}
	attrs := permissions.NewUserAttributes(userID)
	if err := json.Unmarshal([]byte(raw), attrs); err != nil {
		return nil, fmt.Errorf("decode attributes for %s: %w", userID, err)
	}
	attrs.UserID = userID
	return attrs, nil
}

func (s *RedisRoleAttributeStore) PutRoleAssignment(ctx context.Context, a permissions.RoleAssignment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode role assignment: %w", err)
	}
	if err := s.client.SAdd(ctx, s.rolesKey(a.UserID), string(raw)).Err(); err != nil {
		return fmt.Errorf("store role assignment for %s: %w", a.UserID, err)
	}
	return nil
}

// RevokeRole removes every assignment of the role regardless of scope.
func (s *RedisRoleAttributeStore) RevokeRole(ctx context.Context, userID, role string) error {
	key := s.rolesKey(userID)
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("read roles for %s: %w", userID, err)
	}
	for _, m := range members {
		var a permissions.RoleAssignment
		if err := json.Unmarshal([]byte(m), &a); err != nil {
			continue
		}
		if a.Role == role {
			if err := s.client.SRem(ctx, key, m).Err(); err != nil {
				return fmt.Errorf("revoke role %s for %s: %w", role, userID, err)
			}
		}
	}
	return nil
}

func (s *RedisRoleAttributeStore) PutUserAttributes(ctx context.Context, attrs *permissions.UserAttributes) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	if err := s.client.Set(ctx, s.attrsKey(attrs.UserID), string(raw), 0).Err(); err != nil {
		return fmt.Errorf("store attributes for %s: %w", attrs.UserID, err)
	}
	return nil
}
