// Package runstore 按运行 ID 保存每次运行的中间结果。
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/branding"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
)

// ErrNotFound 键不存在或已过期
var ErrNotFound = errors.New("runstore: not found")

// Backend 底层键值存储
type Backend interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Store 运行结果存储，值以 JSON 保存
type Store struct {
	backend Backend
	ttl     time.Duration
}

// New 基于 backend 创建存储，ttl 为 0 表示不过期
func New(backend Backend, ttl time.Duration) *Store {
	return &Store{backend: backend, ttl: ttl}
}

// Close 释放底层连接，backend 不需要关闭时直接返回
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func briefsKey(runID string) string { return fmt.Sprintf("content_pipeline:%s:briefs", runID) }
func articleKey(runID string, n int) string {
	return fmt.Sprintf("content_pipeline:%s:article:%d", runID, n)
}
func brandKey(runID string, n int) string { return fmt.Sprintf("content_pipeline:%s:brand:%d", runID, n) }

func (s *Store) PutBriefs(ctx context.Context, runID string, briefs []model.ResearchBrief) error {
	return s.put(ctx, briefsKey(runID), briefs)
}

func (s *Store) GetBriefs(ctx context.Context, runID string) ([]model.ResearchBrief, error) {
	var briefs []model.ResearchBrief
	if err := s.get(ctx, briefsKey(runID), &briefs); err != nil {
		return nil, err
	}
	return briefs, nil
}

func (s *Store) PutArticle(ctx context.Context, runID string, blogNumber int, article string) error {
	return s.put(ctx, articleKey(runID, blogNumber), article)
}

func (s *Store) GetArticle(ctx context.Context, runID string, blogNumber int) (string, error) {
	var article string
	if err := s.get(ctx, articleKey(runID, blogNumber), &article); err != nil {
		return "", err
	}
	return article, nil
}

func (s *Store) PutBrand(ctx context.Context, runID string, blogNumber int, out *branding.Outcome) error {
	return s.put(ctx, brandKey(runID, blogNumber), out)
}

func (s *Store) GetBrand(ctx context.Context, runID string, blogNumber int) (*branding.Outcome, error) {
	var out branding.Outcome
	if err := s.get(ctx, brandKey(runID, blogNumber), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errcode.Internal(err, "encode %s", key)
	}
	if err := s.backend.Set(ctx, key, data, s.ttl); err != nil {
		return errcode.Internal(err, "store %s", key)
	}
	return nil
}

// get 键不存在时返回 PRECONDITION_MISSING
func (s *Store) get(ctx context.Context, key string, v any) error {
	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return errcode.PreconditionMissing(err, "no result stored for %s", key)
	}
	if err != nil {
		return errcode.Internal(err, "load %s", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errcode.Internal(err, "decode %s", key)
	}
	return nil
}
