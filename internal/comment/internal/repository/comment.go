// Copyright 2024 blogkit
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blogkit/livecomment/internal/comment/internal/domain"
	"github.com/blogkit/livecomment/internal/comment/internal/repository/cache"
	"github.com/blogkit/livecomment/internal/comment/internal/repository/dao"
	"github.com/ecodeclub/ekit/slice"
	"github.com/gotomicro/ego/core/elog"
)

type CommentRepository interface {
	// Create 写入评论。contactEmail 只落库不回显，领域对象里没有它的位置
	Create(ctx context.Context, comment domain.Comment, contactEmail *string) (domain.Comment, error)
	// FindPage 查找某篇文章 ctime 早于 beforeCtime 的一页顶层评论，
	// 回复完整嵌套，顶层倒序、回复正序
	FindPage(ctx context.Context, postSlug string, beforeCtime int64, limit int) ([]domain.Comment, bool, error)
	FindByID(ctx context.Context, id string) (domain.Comment, error)
	UpdateContent(ctx context.Context, id string, content string) (domain.Comment, error)
	// DeleteSubtree 软删除评论及其全部后代，返回受影响的所有ID
	DeleteSubtree(ctx context.Context, id string) ([]string, error)
	Count(ctx context.Context, postSlug string) (int64, error)
	Counts(ctx context.Context, postSlugs []string) (map[string]int64, error)
	PurgeDeletedBefore(ctx context.Context, deadline int64) (int64, error)
}

type commentRepository struct {
	dao    dao.CommentDAO
	cache  cache.CountCache
	logger *elog.Component
}

func NewCommentRepository(d dao.CommentDAO, c cache.CountCache) CommentRepository {
	return &commentRepository{
		dao:    d,
		cache:  c,
		logger: elog.DefaultLogger,
	}
}

func (r *commentRepository) Create(ctx context.Context, comment domain.Comment, contactEmail *string) (domain.Comment, error) {
	entity := r.toEntity(comment)
	if contactEmail != nil {
		entity.ContactEmail = sql.Null[string]{V: *contactEmail, Valid: true}
	}
	created, err := r.dao.Insert(ctx, entity)
	if err != nil {
		return domain.Comment{}, translate(err)
	}
	// 评论数变了，下次读穿透回源
	r.dropCount(ctx, comment.PostSlug)
	return r.toDomain(created), nil
}

func (r *commentRepository) FindPage(ctx context.Context, postSlug string, beforeCtime int64, limit int) ([]domain.Comment, bool, error) {
	// 多取一条用来判断还有没有下一页
	roots, err := r.dao.FindRoots(ctx, postSlug, beforeCtime, limit+1)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(roots) > limit
	if hasMore {
		roots = roots[:limit]
	}
	rootIDs := slice.Map(roots, func(_ int, src dao.Comment) string {
		return src.ID
	})
	descendants, err := r.dao.FindDescendants(ctx, rootIDs)
	if err != nil {
		return nil, false, err
	}

	rows := make([]domain.Comment, 0, len(roots)+len(descendants))
	for _, c := range roots {
		rows = append(rows, r.toDomain(c))
	}
	for _, c := range descendants {
		rows = append(rows, r.toDomain(c))
	}
	return domain.BuildTree(rows).Roots, hasMore, nil
}

func (r *commentRepository) FindByID(ctx context.Context, id string) (domain.Comment, error) {
	c, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return domain.Comment{}, translate(err)
	}
	return r.toDomain(c), nil
}

func (r *commentRepository) UpdateContent(ctx context.Context, id string, content string) (domain.Comment, error) {
	c, err := r.dao.UpdateContent(ctx, id, content)
	if err != nil {
		return domain.Comment{}, translate(err)
	}
	return r.toDomain(c), nil
}

func (r *commentRepository) DeleteSubtree(ctx context.Context, id string) ([]string, error) {
	target, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	ids, err := r.dao.SoftDeleteSubtree(ctx, id, domain.Tombstone)
	if err != nil {
		return nil, translate(err)
	}
	r.dropCount(ctx, target.PostSlug)
	return ids, nil
}

func (r *commentRepository) Count(ctx context.Context, postSlug string) (int64, error) {
	cnt, err := r.cache.Get(ctx, postSlug)
	if err == nil {
		return cnt, nil
	}
	if !errors.Is(err, cache.ErrCountNotFound) {
		r.logger.Error("读取评论数缓存失败", elog.String("post", postSlug), elog.FieldErr(err))
	}
	cnt, err = r.dao.CountByPost(ctx, postSlug)
	if err != nil {
		return 0, err
	}
	if err1 := r.cache.Set(ctx, postSlug, cnt); err1 != nil {
		r.logger.Error("回写评论数缓存失败", elog.String("post", postSlug), elog.FieldErr(err1))
	}
	return cnt, nil
}

func (r *commentRepository) Counts(ctx context.Context, postSlugs []string) (map[string]int64, error) {
	res := make(map[string]int64, len(postSlugs))
	var missing []string
	for _, slug := range postSlugs {
		if cnt, err := r.cache.Get(ctx, slug); err == nil {
			res[slug] = cnt
		} else {
			missing = append(missing, slug)
		}
	}
	if len(missing) == 0 {
		return res, nil
	}
	counts, err := r.dao.CountByPosts(ctx, missing)
	if err != nil {
		return nil, err
	}
	for slug, cnt := range counts {
		res[slug] = cnt
		if err1 := r.cache.Set(ctx, slug, cnt); err1 != nil {
			r.logger.Error("回写评论数缓存失败", elog.String("post", slug), elog.FieldErr(err1))
		}
	}
	return res, nil
}

func (r *commentRepository) PurgeDeletedBefore(ctx context.Context, deadline int64) (int64, error) {
	return r.dao.PurgeDeletedBefore(ctx, deadline)
}

func (r *commentRepository) dropCount(ctx context.Context, postSlug string) {
	if err := r.cache.Del(ctx, postSlug); err != nil {
		r.logger.Error("失效评论数缓存失败", elog.String("post", postSlug), elog.FieldErr(err))
	}
}

// translate 把 DAO 层的错误翻译成领域错误，保证重试谓词能识别永久性失败
func translate(err error) error {
	switch {
	case errors.Is(err, dao.ErrParentNotFound),
		errors.Is(err, dao.ErrParentMismatch),
		errors.Is(err, dao.ErrParentDeleted):
		return fmt.Errorf("%w: %w", domain.ErrParentNotFound, err)
	case errors.Is(err, dao.ErrCommentNotFound):
		return fmt.Errorf("%w: %w", domain.ErrCommentNotFound, err)
	default:
		return err
	}
}

func (r *commentRepository) toEntity(c domain.Comment) dao.Comment {
	e := dao.Comment{
		ID:       c.ID,
		PostSlug: c.PostSlug,
		UserName: c.Author.Name,
		Content:  c.Content,
	}
	if c.ParentID != nil {
		e.ParentID = sql.Null[string]{V: *c.ParentID, Valid: true}
	}
	if c.Author.ID != nil {
		e.UserID = sql.Null[string]{V: *c.Author.ID, Valid: true}
	}
	if c.Author.Avatar != nil {
		e.UserAvatar = sql.Null[string]{V: *c.Author.Avatar, Valid: true}
	}
	return e
}

func (r *commentRepository) toDomain(c dao.Comment) domain.Comment {
	res := domain.Comment{
		ID:       c.ID,
		PostSlug: c.PostSlug,
		Author: domain.Author{
			Name: c.UserName,
		},
		Content:   c.Content,
		IsEdited:  c.IsEdited,
		IsDeleted: c.IsDeleted,
		Ctime:     c.Ctime,
		Utime:     c.Utime,
	}
	if c.ParentID.Valid {
		parentID := c.ParentID.V
		res.ParentID = &parentID
	}
	if c.UserID.Valid {
		uid := c.UserID.V
		res.Author.ID = &uid
	}
	if c.UserAvatar.Valid {
		avatar := c.UserAvatar.V
		res.Author.Avatar = &avatar
	}
	return res
}
