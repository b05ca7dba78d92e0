package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
	facterSql "github.com/siherrmann/facter/sql"
)

// ArticlesDBHandlerFunctions defines the interface for article database operations.
type ArticlesDBHandlerFunctions interface {
	InsertArticle(payload *model.ArticlePayload) (*model.Article, bool, error)
	SelectArticle(rid uuid.UUID) (*model.Article, error)
	SelectArticleByHash(contentHash string) (*model.Article, error)
}

// ArticlesDBHandler handles article-related database operations
type ArticlesDBHandler struct {
	db *helper.Database
}

// NewArticlesDBHandler creates a new articles database handler.
// It initializes the database connection and loads article-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewArticlesDBHandler(db *helper.Database, force bool) (*ArticlesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	articlesDbHandler := &ArticlesDBHandler{
		db: db,
	}

	err := facterSql.LoadArticlesSql(articlesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load articles sql", err)
	}

	err = articlesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ArticlesDBHandler")

	return articlesDbHandler, nil
}

// CreateTable creates the 'articles' table in the database.
// If the table already exists, it does not create it again.
func (h *ArticlesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_articles();`)
	if err != nil {
		log.Panicf("error initializing articles table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table articles")

	return nil
}

// InsertArticle inserts a new article. If the content hash is already
// present the existing article is returned and the inserted flag is false.
func (h *ArticlesDBHandler) InsertArticle(payload *model.ArticlePayload) (*model.Article, bool, error) {
	return h.InsertArticleTx(h.db.Instance, payload)
}

// InsertArticleTx is InsertArticle running against the given Querier.
func (h *ArticlesDBHandler) InsertArticleTx(q Querier, payload *model.ArticlePayload) (*model.Article, bool, error) {
	article := &model.Article{}
	var inserted bool
	row := q.QueryRow(
		`SELECT * FROM insert_article($1, $2, $3, $4, $5, $6)`,
		payload.Title,
		payload.Medium,
		payload.Country,
		payload.PublicationDate,
		payload.ContentHash(),
		payload.Metadata,
	)

	err := row.Scan(
		&article.ID,
		&article.RID,
		&article.Title,
		&article.Medium,
		&article.Country,
		&article.PublicationDate,
		&article.ContentHash,
		&article.Metadata,
		&article.CreatedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, helper.NewError("scan", err)
	}

	return article, inserted, nil
}

// SelectArticle retrieves an article by its request ID.
func (h *ArticlesDBHandler) SelectArticle(rid uuid.UUID) (*model.Article, error) {
	article := &model.Article{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_article($1)`,
		rid,
	)

	err := row.Scan(
		&article.ID,
		&article.RID,
		&article.Title,
		&article.Medium,
		&article.Country,
		&article.PublicationDate,
		&article.ContentHash,
		&article.Metadata,
		&article.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return article, nil
}

// SelectArticleByHash retrieves an article by its content hash.
func (h *ArticlesDBHandler) SelectArticleByHash(contentHash string) (*model.Article, error) {
	article := &model.Article{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_article_by_hash($1)`,
		contentHash,
	)

	err := row.Scan(
		&article.ID,
		&article.RID,
		&article.Title,
		&article.Medium,
		&article.Country,
		&article.PublicationDate,
		&article.ContentHash,
		&article.Metadata,
		&article.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return article, nil
}
