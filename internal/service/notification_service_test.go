package service

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/inkpress/internal/model"
	"github.com/qs3c/inkpress/internal/pkg/jwt"
	"github.com/qs3c/inkpress/internal/testutil"
)

func TestNotificationService_NotifyReply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	parentAuthor := testutil.TestUser(t, env.db, testutil.WithEmail("alice@example.com"))
	replier := testutil.TestUser(t, env.db, testutil.WithDisplayName("Bob"))
	post := testutil.TestPost(t, env.db, parentAuthor.ID)
	parent := testutil.TestComment(t, env.db, parentAuthor.ID, post.ID, testutil.WithCommentStatus(model.CommentStatusPublished))
	reply := testutil.TestComment(t, env.db, replier.ID, post.ID, testutil.WithReplyTo(parent),
		testutil.WithContent(testutil.Doc(strings.Repeat("很长的回复", 40))))
	reply.User = replier

	outcome := env.notifier.NotifyReply(ctx, ReplyNotification{Comment: reply, PostSlug: post.Slug, PostTitle: post.Title})
	assert.Equal(t, ReplyOutcomeSent, outcome)

	emails := drainEmails(t, env)
	require.Len(t, emails, 1)
	msg := emails[0]
	assert.Equal(t, "alice@example.com", msg.To)
	assert.NotContains(t, msg.HTML, strings.Repeat("很长的回复", 40))

	// 退订链接中的令牌可以被解析
	raw := strings.TrimSuffix(strings.TrimPrefix(msg.Headers["List-Unsubscribe"], "<"), ">")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/email/unsubscribe", u.Path)
	claims, err := jwt.ParseScopedToken(u.Query().Get("token"), env.cfg.Email.UnsubscribeSecret)
	require.NoError(t, err)
	assert.Equal(t, parentAuthor.ID, claims.UserID)
	assert.Equal(t, model.EmailCategoryReplyNotification, claims.Category)
}

func TestNotificationService_NotifyReplyOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	parentAuthor := testutil.TestUser(t, env.db)
	replier := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, parentAuthor.ID)
	parent := testutil.TestComment(t, env.db, parentAuthor.ID, post.ID, testutil.WithCommentStatus(model.CommentStatusPublished))
	reply := testutil.TestComment(t, env.db, replier.ID, post.ID, testutil.WithReplyTo(parent))
	topLevel := testutil.TestComment(t, env.db, replier.ID, post.ID)
	missingTarget := int64(99999)

	t.Run("不是回复", func(t *testing.T) {
		assert.Equal(t, ReplyOutcomeNoRecipient, env.notifier.NotifyReply(ctx, ReplyNotification{Comment: topLevel}))
	})

	t.Run("目标不存在", func(t *testing.T) {
		c := *reply
		c.ReplyToCommentID = &missingTarget
		assert.Equal(t, ReplyOutcomeNoRecipient, env.notifier.NotifyReply(ctx, ReplyNotification{Comment: &c}))
	})

	t.Run("跳过指定用户", func(t *testing.T) {
		skip := parentAuthor.ID
		assert.Equal(t, ReplyOutcomeSkipped, env.notifier.NotifyReply(ctx, ReplyNotification{Comment: reply, SkipNotifyUserID: &skip}))
	})

	t.Run("回复自己", func(t *testing.T) {
		c := *reply
		c.UserID = parentAuthor.ID
		assert.Equal(t, ReplyOutcomeSelfReply, env.notifier.NotifyReply(ctx, ReplyNotification{Comment: &c}))
	})

	t.Run("已退订", func(t *testing.T) {
		require.NoError(t, env.unsubRepo.Add(parentAuthor.ID, model.EmailCategoryReplyNotification))
		assert.Equal(t, ReplyOutcomeUnsubscribed, env.notifier.NotifyReply(ctx, ReplyNotification{Comment: reply}))
	})

	assert.Empty(t, drainEmails(t, env))
}

func TestNotificationService_NotifyAdminFlagged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, user.ID)
	comment := testutil.TestComment(t, env.db, user.ID, post.ID, testutil.WithContent(testutil.Doc("<script>alert(1)</script>")))

	require.NoError(t, env.notifier.NotifyAdminFlagged(ctx, AdminFlagNotification{
		Comment:       comment,
		CommenterName: "Mallory",
		PostTitle:     post.Title,
		Reason:        "script injection",
	}))

	emails := drainEmails(t, env)
	require.Len(t, emails, 1)
	assert.Equal(t, env.cfg.Site.AdminEmail, emails[0].To)
	assert.Contains(t, emails[0].HTML, "Mallory")
	assert.NotContains(t, emails[0].HTML, "<script>")
}

func TestCommentURL(t *testing.T) {
	assert.Equal(t, "https://blog.example.com/posts/hello#comment-7", CommentURL("https://blog.example.com/", "hello", 7))
}
