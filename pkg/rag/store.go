package rag

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/redis/go-redis/v9"

	"wallo/pkg/utils"
)

const (
	chunkKeyPrefix = "rag:chunk:"
	chunkSetKey    = "rag:chunks"
)

// ScoredChunk 為一次檢索命中的片段與其相似度
type ScoredChunk struct {
	ID    string
	Text  string
	Score float64
}

// RedisStore 以 Redis hash 保存片段文本與向量,檢索時在客戶端計算餘弦相似度
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// NewRedisStoreFromClient is used by tests to inject a miniredis-backed client.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Add 寫入一批片段與其向量
func (s *RedisStore) Add(ctx context.Context, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("text/vector count mismatch: %d vs %d", len(texts), len(vectors))
	}

	pipe := s.rdb.Pipeline()
	for i, text := range texts {
		id := utils.GenerateID()
		key := chunkKeyPrefix + id
		pipe.HSet(ctx, key, map[string]interface{}{
			"text":   text,
			"vector": encodeVector(vectors[i]),
		})
		pipe.SAdd(ctx, chunkSetKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

// Search 回傳與查詢向量最相似的前 k 個片段
func (s *RedisStore) Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	ids, err := s.rdb.SMembers(ctx, chunkSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	var scored []ScoredChunk
	for _, id := range ids {
		fields, err := s.rdb.HGetAll(ctx, chunkKeyPrefix+id).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load chunk %s: %w", id, err)
		}
		vec := decodeVector([]byte(fields["vector"]))
		if len(vec) == 0 {
			continue
		}
		scored = append(scored, ScoredChunk{
			ID:    id,
			Text:  fields["text"],
			Score: cosineSimilarity(query, vec),
		})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Count 回傳已索引的片段數
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, chunkSetKey).Result()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
