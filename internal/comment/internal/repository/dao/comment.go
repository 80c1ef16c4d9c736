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

package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ego-component/egorm"
	"gorm.io/gorm"
)

var (
	ErrParentNotFound  = errors.New("父评论不存在")
	ErrParentMismatch  = errors.New("父评论不属于同一篇文章")
	ErrParentDeleted   = errors.New("父评论已被删除")
	ErrCommentNotFound = errors.New("评论不存在")
)

// Comment 一条评论。user_id 为 NULL 表示匿名评论。
// contact_email 是私密联系方式，只存在于服务端，
// 任何公开读路径都不允许把它带出去
type Comment struct {
	ID string `gorm:"type:varchar(32);primaryKey;comment:'评论ID'"`

	PostSlug string `gorm:"type:varchar(256);not null;index:idx_post_ctime,priority:1;comment:'所属文章'"`

	// 这两个字段为 NULL 表示顶层评论。
	// root_id 指向顶层评论，一次查询就能取出整棵子树
	ParentID sql.Null[string] `gorm:"type:varchar(32);index:idx_parent_id;comment:'父评论ID'"`
	RootID   sql.Null[string] `gorm:"type:varchar(32);index:idx_root_id;comment:'顶层评论ID'"`

	UserID     sql.Null[string] `gorm:"type:varchar(64);index:idx_user_id;comment:'评论者，NULL表示匿名'"`
	UserName   string           `gorm:"type:varchar(128);not null"`
	UserAvatar sql.Null[string] `gorm:"type:varchar(512)"`

	Content string `gorm:"type:text;not null"`

	IsEdited  bool
	IsDeleted bool            `gorm:"index:idx_is_deleted"`
	DeletedAt sql.Null[int64] `gorm:"comment:'硬删除回收时间的依据，不对外暴露'"`

	ContactEmail sql.Null[string] `gorm:"type:varchar(256);comment:'私密联系方式，永不出服务端'"`

	Ctime int64 `gorm:"index:idx_post_ctime,priority:2"`
	Utime int64
}

func (Comment) TableName() string {
	return "comments"
}

func InitTables(db *egorm.Component) error {
	return db.AutoMigrate(&Comment{})
}

type CommentDAO interface {
	// Insert 写入一条评论，校验父评论并补全 root_id
	Insert(ctx context.Context, c Comment) (Comment, error)
	// FindRoots 查找某篇文章的顶层评论，按评论时间倒序，取 ctime 早于 beforeCtime 的一页
	FindRoots(ctx context.Context, postSlug string, beforeCtime int64, limit int) ([]Comment, error)
	// FindDescendants 查找这批顶层评论的全部后代，按评论时间正序
	FindDescendants(ctx context.Context, rootIDs []string) ([]Comment, error)
	FindByID(ctx context.Context, id string) (Comment, error)
	// UpdateContent 更新内容并打上编辑标记
	UpdateContent(ctx context.Context, id string, content string) (Comment, error)
	// SoftDeleteSubtree 软删除评论及其全部后代，内容替换为 tombstone，
	// 返回受影响的所有评论ID（含 id 自身）
	SoftDeleteSubtree(ctx context.Context, id string, tombstone string) ([]string, error)
	CountByPost(ctx context.Context, postSlug string) (int64, error)
	CountByPosts(ctx context.Context, postSlugs []string) (map[string]int64, error)
	// PurgeDeletedBefore 硬删除 deleted_at 早于 deadline 的评论，返回删除行数
	PurgeDeletedBefore(ctx context.Context, deadline int64) (int64, error)
}

type commentDAO struct {
	db *egorm.Component
}

func NewCommentGORMDAO(db *egorm.Component) CommentDAO {
	return &commentDAO{db: db}
}

func (g *commentDAO) Insert(ctx context.Context, c Comment) (Comment, error) {
	now := time.Now().UnixMilli()
	c.Ctime, c.Utime = now, now
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.ParentID.Valid {
			var parent Comment
			if err := tx.First(&parent, "id = ?", c.ParentID.V).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: id=%s", ErrParentNotFound, c.ParentID.V)
				}
				return err
			}
			if parent.PostSlug != c.PostSlug {
				return ErrParentMismatch
			}
			if parent.IsDeleted {
				return ErrParentDeleted
			}
			// 父评论本身是顶层评论时，root 就是父评论
			if !parent.RootID.Valid {
				c.RootID = sql.Null[string]{V: parent.ID, Valid: true}
			} else {
				c.RootID = parent.RootID
			}
		}
		return tx.Create(&c).Error
	})
	return c, err
}

func (g *commentDAO) FindRoots(ctx context.Context, postSlug string, beforeCtime int64, limit int) ([]Comment, error) {
	var res []Comment
	err := g.db.WithContext(ctx).
		Where("post_slug = ? AND parent_id IS NULL", postSlug).
		Where("ctime < ?", beforeCtime).
		Order("ctime DESC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (g *commentDAO) FindDescendants(ctx context.Context, rootIDs []string) ([]Comment, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}
	var res []Comment
	err := g.db.WithContext(ctx).
		Where("root_id IN ?", rootIDs).
		Order("ctime ASC").
		Find(&res).Error
	return res, err
}

func (g *commentDAO) FindByID(ctx context.Context, id string) (Comment, error) {
	var c Comment
	err := g.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, fmt.Errorf("%w: id=%s", ErrCommentNotFound, id)
	}
	return c, err
}

func (g *commentDAO) UpdateContent(ctx context.Context, id string, content string) (Comment, error) {
	now := time.Now().UnixMilli()
	var c Comment
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Comment{}).Where("id = ?", id).Updates(map[string]any{
			"content":   content,
			"is_edited": true,
			"utime":     now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: id=%s", ErrCommentNotFound, id)
		}
		return tx.First(&c, "id = ?", id).Error
	})
	return c, err
}

func (g *commentDAO) SoftDeleteSubtree(ctx context.Context, id string, tombstone string) ([]string, error) {
	var ids []string
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target Comment
		if err := tx.First(&target, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: id=%s", ErrCommentNotFound, id)
			}
			return err
		}

		// 整棵评论树都挂在同一个 root 下，一次查出来再在内存里收集子树
		rootID := target.ID
		if target.RootID.Valid {
			rootID = target.RootID.V
		}
		var family []Comment
		if err := tx.Select("id", "parent_id").
			Where("root_id = ? OR id = ?", rootID, rootID).
			Find(&family).Error; err != nil {
			return err
		}

		children := make(map[string][]string, len(family))
		for _, c := range family {
			if c.ParentID.Valid {
				children[c.ParentID.V] = append(children[c.ParentID.V], c.ID)
			}
		}
		queue := []string{target.ID}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			ids = append(ids, cur)
			queue = append(queue, children[cur]...)
		}

		now := time.Now().UnixMilli()
		return tx.Model(&Comment{}).Where("id IN ?", ids).Updates(map[string]any{
			"content":    tombstone,
			"is_deleted": true,
			"deleted_at": now,
			"utime":      now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (g *commentDAO) CountByPost(ctx context.Context, postSlug string) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&Comment{}).
		Where("post_slug = ? AND is_deleted = ?", postSlug, false).
		Count(&count).Error
	return count, err
}

func (g *commentDAO) CountByPosts(ctx context.Context, postSlugs []string) (map[string]int64, error) {
	if len(postSlugs) == 0 {
		return map[string]int64{}, nil
	}
	var rows []struct {
		PostSlug string
		Cnt      int64
	}
	err := g.db.WithContext(ctx).Model(&Comment{}).
		Select("post_slug, COUNT(*) AS cnt").
		Where("post_slug IN ? AND is_deleted = ?", postSlugs, false).
		Group("post_slug").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	res := make(map[string]int64, len(postSlugs))
	for _, slug := range postSlugs {
		res[slug] = 0
	}
	for _, row := range rows {
		res[row.PostSlug] = row.Cnt
	}
	return res, nil
}

func (g *commentDAO) PurgeDeletedBefore(ctx context.Context, deadline int64) (int64, error) {
	res := g.db.WithContext(ctx).
		Where("is_deleted = ? AND deleted_at < ?", true, deadline).
		Delete(&Comment{})
	return res.RowsAffected, res.Error
}
