package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

func (s *RedisService) GetSeeds(ctx context.Context, userID string) (*SeedState, error) {
	fields, err := s.client.HGetAll(ctx, fmt.Sprintf(KeySeeds, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get seeds: %w", err)
	}
	return parseSeedFields(fields)
}

var initSeedsScript = redis.NewScript(`
	local key = KEYS[1]
	if redis.call("HSETNX", key, "server_seed", ARGV[1]) == 1 then
		redis.call("HSET", key, "server_seed_hash", ARGV[2], "client_seed", ARGV[3], "nonce", ARGV[4])
	end
	return redis.call("HMGET", key, "server_seed", "server_seed_hash", "client_seed", "nonce")
`)

func (s *RedisService) InitSeeds(ctx context.Context, userID string, seeds SeedState) (*SeedState, error) {
	key := fmt.Sprintf(KeySeeds, userID)

	values, err := initSeedsScript.Run(ctx, s.client, []string{key},
		seeds.ServerSeed, seeds.ServerSeedHash, seeds.ClientSeed, seeds.Nonce,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to init seeds: %w", err)
	}
	return seedStateFromReply(values)
}

var consumeNonceScript = redis.NewScript(`
	local key = KEYS[1]
	if redis.call("EXISTS", key) == 0 then
		return redis.error_reply("seeds not found")
	end
	local state = redis.call("HMGET", key, "server_seed", "server_seed_hash", "client_seed", "nonce")
	redis.call("HINCRBY", key, "nonce", 1)
	return state
`)

func (s *RedisService) ConsumeNonce(ctx context.Context, userID string) (*SeedState, error) {
	key := fmt.Sprintf(KeySeeds, userID)

	values, err := consumeNonceScript.Run(ctx, s.client, []string{key}).StringSlice()
	if err != nil {
		if isSeedsNotFound(err) {
			return nil, ErrSeedsNotFound
		}
		return nil, fmt.Errorf("failed to consume nonce: %w", err)
	}
	return seedStateFromReply(values)
}

func (s *RedisService) SetClientSeed(ctx context.Context, userID, clientSeed string) (*SeedState, error) {
	key := fmt.Sprintf(KeySeeds, userID)

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to set client seed: %w", err)
	}
	if n == 0 {
		return nil, ErrSeedsNotFound
	}
	if err := s.client.HSet(ctx, key, "client_seed", clientSeed).Err(); err != nil {
		return nil, fmt.Errorf("failed to set client seed: %w", err)
	}
	return s.GetSeeds(ctx, userID)
}

var rotateSeedScript = redis.NewScript(`
	local key = KEYS[1]
	if redis.call("EXISTS", key) == 0 then
		return redis.error_reply("seeds not found")
	end
	local state = redis.call("HMGET", key, "server_seed", "server_seed_hash", "client_seed", "nonce")
	redis.call("HSET", key, "server_seed", ARGV[1], "server_seed_hash", ARGV[2], "nonce", 0)
	return state
`)

func (s *RedisService) RotateServerSeed(ctx context.Context, userID, serverSeed, serverSeedHash string) (*SeedState, error) {
	key := fmt.Sprintf(KeySeeds, userID)

	values, err := rotateSeedScript.Run(ctx, s.client, []string{key}, serverSeed, serverSeedHash).StringSlice()
	if err != nil {
		if isSeedsNotFound(err) {
			return nil, ErrSeedsNotFound
		}
		return nil, fmt.Errorf("failed to rotate seed: %w", err)
	}
	return seedStateFromReply(values)
}

// seedStateFromReply reads an HMGET of server_seed, server_seed_hash, client_seed, nonce.
func seedStateFromReply(values []string) (*SeedState, error) {
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected seed reply of %d fields", len(values))
	}
	return parseSeedFields(map[string]string{
		"server_seed":      values[0],
		"server_seed_hash": values[1],
		"client_seed":      values[2],
		"nonce":            values[3],
	})
}

func parseSeedFields(fields map[string]string) (*SeedState, error) {
	if len(fields) == 0 || fields["server_seed"] == "" {
		return nil, ErrSeedsNotFound
	}

	var nonce int64
	if raw := fields["nonce"]; raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stored nonce %q: %w", raw, err)
		}
		nonce = n
	}

	return &SeedState{
		ServerSeed:     fields["server_seed"],
		ServerSeedHash: fields["server_seed_hash"],
		ClientSeed:     fields["client_seed"],
		Nonce:          nonce,
	}, nil
}

func isSeedsNotFound(err error) bool {
	var redisErr redis.Error
	return errors.As(err, &redisErr) && redisErr.Error() == "seeds not found"
}

func (s *RedisService) DeleteSeeds(ctx context.Context, userID string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeySeeds, userID)).Err()
}
