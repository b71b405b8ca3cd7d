package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "github.com/lib/pq"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/config"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS content_runs (
	id TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	target_audience TEXT NOT NULL,
	context JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS research_briefs (
	run_id TEXT NOT NULL REFERENCES content_runs(id) ON DELETE CASCADE,
	blog_number INT NOT NULL,
	blog_angle TEXT NOT NULL,
	primary_keyword TEXT NOT NULL,
	payload JSONB NOT NULL,
	PRIMARY KEY (run_id, blog_number)
)`,
	`CREATE TABLE IF NOT EXISTS articles (
	run_id TEXT NOT NULL REFERENCES content_runs(id) ON DELETE CASCADE,
	blog_number INT NOT NULL,
	content TEXT NOT NULL,
	brand_score INT,
	accepted BOOLEAN,
	brand_report JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, blog_number)
)`,
}

// Postgres 运行记录的数据库存储
type Postgres struct {
	db *sql.DB
}

// NewPostgres 连接数据库并初始化表结构
func NewPostgres(ctx context.Context, cfg config.DBConfig) (*Postgres, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	p := New(db)
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return p, nil
}

// New 基于已有连接创建存储
func New(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// Migrate 创建缺失的表
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun 记录一次运行
func (p *Postgres) CreateRun(ctx context.Context, runID string, rc model.ResearchContext) error {
	payload, err := json.Marshal(rc)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO content_runs (id, topic, target_audience, context) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET topic = EXCLUDED.topic, target_audience = EXCLUDED.target_audience, context = EXCLUDED.context`,
		runID, cleanText(rc.Topic), cleanText(rc.TargetAudience), payload)
	return err
}

// SaveBriefs 在一个事务中写入所有简报
func (p *Postgres) SaveBriefs(ctx context.Context, runID string, briefs []model.ResearchBrief) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, b := range briefs {
		payload, err := json.Marshal(b)
		if err != nil {
			return rollback(tx, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO research_briefs (run_id, blog_number, blog_angle, primary_keyword, payload)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (run_id, blog_number) DO UPDATE
SET blog_angle = EXCLUDED.blog_angle, primary_keyword = EXCLUDED.primary_keyword, payload = EXCLUDED.payload`,
			runID, b.BlogNumber, cleanText(b.BlogAngle), cleanText(b.PrimaryKeyword), payload); err != nil {
			return rollback(tx, err)
		}
	}

	return tx.Commit()
}

// SaveArticle 写入或覆盖某个角度的文章
func (p *Postgres) SaveArticle(ctx context.Context, runID string, blogNumber int, content string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO articles (run_id, blog_number, content) VALUES ($1, $2, $3)
ON CONFLICT (run_id, blog_number) DO UPDATE SET content = EXCLUDED.content, updated_at = now()`,
		runID, blogNumber, cleanText(content))
	return err
}

// UpdateBrandResult 记录品牌评估结果，文章不存在时返回 PRECONDITION_MISSING
func (p *Postgres) UpdateBrandResult(ctx context.Context, runID string, blogNumber int, content string, accepted bool, report model.BrandReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE articles SET content = $3, brand_score = $4, accepted = $5, brand_report = $6, updated_at = now()
WHERE run_id = $1 AND blog_number = $2`,
		runID, blogNumber, cleanText(content), report.OverallScore, accepted, payload)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errcode.PreconditionMissing(nil, "article %s#%d not found", runID, blogNumber)
	}
	return nil
}

func rollback(tx *sql.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}

// cleanText 移除无效的 UTF-8 字符与 NULL 字节，PostgreSQL 文本字段不支持 NULL 字节
func cleanText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.ReplaceAll(s, "\x00", "")
}
