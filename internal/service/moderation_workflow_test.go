package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/inkpress/internal/model"
	"github.com/qs3c/inkpress/internal/pkg/cache"
	"github.com/qs3c/inkpress/internal/pkg/moderation"
	"github.com/qs3c/inkpress/internal/testutil"
)

func TestModerationWorkflow_SafeCommentPublished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID)
	comment := testutil.TestComment(t, env.db, author.ID, post.ID, testutil.WithContent(testutil.Doc("Great article")))

	err := env.moderation.Run(ctx, "mod-safe", ModerationParams{CommentID: comment.ID})
	require.NoError(t, err)

	got := env.reload(t, comment.ID)
	assert.Equal(t, model.CommentStatusPublished, got.Status)
	assert.Equal(t, "looks fine", got.ModerationReason)

	assert.Equal(t, 1, env.moderator.Calls())
	assert.Equal(t, "Great article", env.moderator.lastInput.Comment)
	assert.Equal(t, post.Title, env.moderator.lastInput.Post.Title)
	assert.Equal(t, post.Summary, env.moderator.lastInput.Post.Summary)

	assert.Equal(t, model.WorkflowStatusCompleted, env.instance(t, "mod-safe").Status)
	assert.Equal(t, []string{stepFetchComment, stepFetchPost, stepModerate, stepApplyVerdict}, env.stepNames(t, "mod-safe"))
	assert.Empty(t, drainEmails(t, env))

	version, err := env.cache.Version(ctx, cache.CommentsNamespace(post.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestModerationWorkflow_UnsafeCommentFlagged(t *testing.T) {
	env := newTestEnv(t)
	env.moderator.verdict = moderation.Verdict{Safe: false, Reason: "spam link"}

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID)
	comment := testutil.TestComment(t, env.db, author.ID, post.ID)

	require.NoError(t, env.moderation.Run(context.Background(), "mod-unsafe", ModerationParams{CommentID: comment.ID}))

	got := env.reload(t, comment.ID)
	assert.Equal(t, model.CommentStatusPending, got.Status)
	assert.Equal(t, "spam link", got.ModerationReason)

	emails := drainEmails(t, env)
	require.Len(t, emails, 1)
	assert.Equal(t, "admin@example.com", emails[0].To)
	assert.Contains(t, emails[0].HTML, post.Title)
	assert.Contains(t, emails[0].HTML, "spam link")
	assert.Contains(t, emails[0].HTML, "https://blog.example.com/admin/comments?status=pending")
	assert.Contains(t, env.stepNames(t, "mod-unsafe"), stepNotifyAdmin)
}

func TestModerationWorkflow_NoAdminEmailConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Site.AdminEmail = ""
	env.moderator.verdict = moderation.Verdict{Safe: false, Reason: "rude"}

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID)
	comment := testutil.TestComment(t, env.db, author.ID, post.ID)

	require.NoError(t, env.moderation.Run(context.Background(), "mod-no-admin", ModerationParams{CommentID: comment.ID}))

	assert.Equal(t, model.CommentStatusPending, env.reload(t, comment.ID).Status)
	assert.Empty(t, drainEmails(t, env))
}

func TestModerationWorkflow_ServiceUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.moderator.err = errors.New("upstream 503")

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID)
	comment := testutil.TestComment(t, env.db, author.ID, post.ID)

	require.NoError(t, env.moderation.Run(context.Background(), "mod-down", ModerationParams{CommentID: comment.ID}))

	assert.Equal(t, env.cfg.Moderation.RetryLimit, env.moderator.Calls())

	got := env.reload(t, comment.ID)
	assert.Equal(t, model.CommentStatusPending, got.Status)
	assert.Equal(t, ReasonServiceUnavailable, got.ModerationReason)
	assert.Equal(t, model.WorkflowStatusCompleted, env.instance(t, "mod-down").Status)

	emails := drainEmails(t, env)
	require.Len(t, emails, 1)
	assert.Equal(t, "admin@example.com", emails[0].To)

	// 降级结果已持久化，重放不会再调用模型
	require.NoError(t, env.db.Model(&model.WorkflowInstance{}).Where("id = ?", "mod-down").
		Update("status", model.WorkflowStatusFailed).Error)
	require.NoError(t, env.moderation.Run(context.Background(), "mod-down", ModerationParams{CommentID: comment.ID}))
	assert.Equal(t, env.cfg.Moderation.RetryLimit, env.moderator.Calls())
}

func TestModerationWorkflow_EmptyContent(t *testing.T) {
	env := newTestEnv(t)

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID)
	comment := testutil.TestComment(t, env.db, author.ID, post.ID,
		testutil.WithContent(model.JSONContent{Type: "doc", Content: []model.JSONContent{{Type: "paragraph"}}}))

	require.NoError(t, env.moderation.Run(context.Background(), "mod-empty", ModerationParams{CommentID: comment.ID}))

	got := env.reload(t, comment.ID)
	assert.Equal(t, model.CommentStatusPending, got.Status)
	assert.Equal(t, ReasonEmptyContent, got.ModerationReason)
	assert.Equal(t, 0, env.moderator.Calls())
	assert.NotContains(t, env.stepNames(t, "mod-empty"), stepModerate)
}

func TestModerationWorkflow_AutoApproveOutsideProduction(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.App.Env = "development"

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID)
	comment := testutil.TestComment(t, env.db, author.ID, post.ID)

	require.NoError(t, env.moderation.Run(context.Background(), "mod-dev", ModerationParams{CommentID: comment.ID}))

	got := env.reload(t, comment.ID)
	assert.Equal(t, model.CommentStatusPublished, got.Status)
	assert.Equal(t, ReasonAutoApproved, got.ModerationReason)
	assert.Equal(t, 0, env.moderator.Calls())
}

func TestModerationWorkflow_NotVerifying(t *testing.T) {
	tests := []struct {
		name   string
		status string
	}{
		{"已发布", model.CommentStatusPublished},
		{"待审核", model.CommentStatusPending},
		{"已删除", model.CommentStatusDeleted},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			author := testutil.TestUser(t, env.db)
			post := testutil.TestPost(t, env.db, author.ID)
			comment := testutil.TestComment(t, env.db, author.ID, post.ID, testutil.WithCommentStatus(tt.status))

			id := fmt.Sprintf("mod-skip-%d", i)
			require.NoError(t, env.moderation.Run(context.Background(), id, ModerationParams{CommentID: comment.ID}))

			assert.Equal(t, tt.status, env.reload(t, comment.ID).Status)
			assert.Equal(t, 0, env.moderator.Calls())
			assert.Equal(t, model.WorkflowStatusCompleted, env.instance(t, id).Status)
		})
	}
}

func TestModerationWorkflow_MissingComment(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.moderation.Run(context.Background(), "mod-missing", ModerationParams{CommentID: 9999}))
	assert.Equal(t, 0, env.moderator.Calls())
}

func TestModerationWorkflow_StatusChangedDuringModeration(t *testing.T) {
	env := newTestEnv(t)
	env.moderator.verdict = moderation.Verdict{Safe: false, Reason: "spam"}

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID)
	comment := testutil.TestComment(t, env.db, author.ID, post.ID)

	env.moderator.hook = func() {
		env.db.Model(&model.Comment{}).Where("id = ?", comment.ID).Update("status", model.CommentStatusDeleted)
	}

	require.NoError(t, env.moderation.Run(context.Background(), "mod-race", ModerationParams{CommentID: comment.ID}))

	assert.Equal(t, model.CommentStatusDeleted, env.reload(t, comment.ID).Status)
	assert.Empty(t, drainEmails(t, env))
	assert.NotContains(t, env.stepNames(t, "mod-race"), stepNotifyAdmin)
}

func TestModerationWorkflow_ResumeSkipsCompletedSteps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	author := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, author.ID)
	comment := testutil.TestComment(t, env.db, author.ID, post.ID)

	require.NoError(t, env.moderation.Run(ctx, "mod-resume", ModerationParams{CommentID: comment.ID}))
	require.Equal(t, 1, env.moderator.Calls())

	// 已完成的实例再次投递直接返回
	require.NoError(t, env.moderation.Run(ctx, "mod-resume", ModerationParams{CommentID: comment.ID}))
	assert.Equal(t, 1, env.moderator.Calls())

	// 模拟在 apply verdict 之前崩溃
	require.NoError(t, env.db.Where("instance_id = ? AND name = ?", "mod-resume", stepApplyVerdict).
		Delete(&model.WorkflowStep{}).Error)
	require.NoError(t, env.db.Model(&model.WorkflowInstance{}).Where("id = ?", "mod-resume").
		Update("status", model.WorkflowStatusFailed).Error)
	require.NoError(t, env.db.Model(&model.Comment{}).Where("id = ?", comment.ID).
		Update("status", model.CommentStatusVerifying).Error)

	require.NoError(t, env.moderation.Run(ctx, "mod-resume", ModerationParams{CommentID: comment.ID}))

	assert.Equal(t, 1, env.moderator.Calls())
	assert.Equal(t, model.CommentStatusPublished, env.reload(t, comment.ID).Status)
	inst := env.instance(t, "mod-resume")
	assert.Equal(t, model.WorkflowStatusCompleted, inst.Status)
	assert.Equal(t, 2, inst.Attempts)
}

func TestModerationWorkflow_ReplyNotification(t *testing.T) {
	env := newTestEnv(t)

	parentAuthor := testutil.TestUser(t, env.db, testutil.WithEmail("parent@example.com"))
	replier := testutil.TestUser(t, env.db, testutil.WithDisplayName("Bob"))
	post := testutil.TestPost(t, env.db, parentAuthor.ID)
	parent := testutil.TestComment(t, env.db, parentAuthor.ID, post.ID, testutil.WithCommentStatus(model.CommentStatusPublished))
	reply := testutil.TestComment(t, env.db, replier.ID, post.ID,
		testutil.WithReplyTo(parent), testutil.WithContent(testutil.Doc("I agree with you")))

	require.NoError(t, env.moderation.Run(context.Background(), "mod-reply", ModerationParams{CommentID: reply.ID}))

	assert.Equal(t, model.CommentStatusPublished, env.reload(t, reply.ID).Status)

	emails := drainEmails(t, env)
	require.Len(t, emails, 1)
	msg := emails[0]
	assert.Equal(t, "parent@example.com", msg.To)
	assert.Contains(t, msg.HTML, "Bob")
	assert.Contains(t, msg.HTML, "I agree with you")
	assert.Contains(t, msg.HTML, fmt.Sprintf("/posts/%s#comment-%d", post.Slug, reply.ID))
	assert.True(t, strings.HasPrefix(msg.Headers["List-Unsubscribe"], "<https://blog.example.com/api/v1/email/unsubscribe?token="))
	assert.Equal(t, "List-Unsubscribe=One-Click", msg.Headers["List-Unsubscribe-Post"])
	assert.Contains(t, env.stepNames(t, "mod-reply"), stepNotifyReply)
}

func TestModerationWorkflow_ReplyNotificationSuppressed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, env *testEnv) (parentAuthor, replier *model.User)
	}{
		{
			name: "回复自己",
			setup: func(t *testing.T, env *testEnv) (*model.User, *model.User) {
				u := testutil.TestUser(t, env.db)
				return u, u
			},
		},
		{
			name: "被回复者已退订",
			setup: func(t *testing.T, env *testEnv) (*model.User, *model.User) {
				parent := testutil.TestUser(t, env.db)
				require.NoError(t, env.unsubRepo.Add(parent.ID, model.EmailCategoryReplyNotification))
				return parent, testutil.TestUser(t, env.db)
			},
		},
		{
			name: "被回复者没有邮箱",
			setup: func(t *testing.T, env *testEnv) (*model.User, *model.User) {
				return testutil.TestUser(t, env.db, testutil.WithoutEmail()), testutil.TestUser(t, env.db)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			parentAuthor, replier := tt.setup(t, env)

			post := testutil.TestPost(t, env.db, parentAuthor.ID)
			parent := testutil.TestComment(t, env.db, parentAuthor.ID, post.ID, testutil.WithCommentStatus(model.CommentStatusPublished))
			reply := testutil.TestComment(t, env.db, replier.ID, post.ID, testutil.WithReplyTo(parent))

			require.NoError(t, env.moderation.Run(context.Background(), "mod-suppressed", ModerationParams{CommentID: reply.ID}))

			assert.Equal(t, model.CommentStatusPublished, env.reload(t, reply.ID).Status)
			assert.Empty(t, drainEmails(t, env))
		})
	}
}

func TestModerationWorkflow_UnsafeReplyDoesNotNotifyParent(t *testing.T) {
	env := newTestEnv(t)
	env.moderator.verdict = moderation.Verdict{Safe: false, Reason: "insult"}

	parentAuthor := testutil.TestUser(t, env.db, testutil.WithEmail("parent@example.com"))
	replier := testutil.TestUser(t, env.db)
	post := testutil.TestPost(t, env.db, parentAuthor.ID)
	parent := testutil.TestComment(t, env.db, parentAuthor.ID, post.ID, testutil.WithCommentStatus(model.CommentStatusPublished))
	reply := testutil.TestComment(t, env.db, replier.ID, post.ID, testutil.WithReplyTo(parent))

	require.NoError(t, env.moderation.Run(context.Background(), "mod-unsafe-reply", ModerationParams{CommentID: reply.ID}))

	emails := drainEmails(t, env)
	require.Len(t, emails, 1)
	assert.Equal(t, "admin@example.com", emails[0].To)
}

func TestModerationWorkflow_FetchCommentCheckpointOmitsEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	parentAuthor := testutil.TestUser(t, env.db, testutil.WithEmail("parent@example.com"))
	replier := testutil.TestUser(t, env.db, testutil.WithDisplayName("Alice"), testutil.WithEmail("alice@example.com"))
	post := testutil.TestPost(t, env.db, parentAuthor.ID)
	parent := testutil.TestComment(t, env.db, parentAuthor.ID, post.ID, testutil.WithCommentStatus(model.CommentStatusPublished))
	reply := testutil.TestComment(t, env.db, replier.ID, post.ID,
		testutil.WithReplyTo(parent), testutil.WithContent(testutil.Doc("Thanks for the pointer")))

	require.NoError(t, env.moderation.Run(ctx, "mod-snapshot", ModerationParams{CommentID: reply.ID}))

	steps, err := env.workflowRepo.ListSteps("mod-snapshot")
	require.NoError(t, err)
	var output string
	for _, s := range steps {
		if s.Name == stepFetchComment {
			output = s.Output
		}
	}
	require.NotEmpty(t, output)
	assert.NotContains(t, output, "alice@example.com")
	assert.NotContains(t, output, "email")
	assert.Contains(t, output, `"author_name":"Alice"`)
	assert.Contains(t, output, fmt.Sprintf(`"reply_to_comment_id":%d`, parent.ID))

	emails := drainEmails(t, env)
	require.Len(t, emails, 1)
	assert.Contains(t, emails[0].HTML, "Alice")

	// 从检查点恢复时通知仍能拿到作者展示名
	require.NoError(t, env.db.Where("instance_id = ? AND name = ?", "mod-snapshot", stepNotifyReply).
		Delete(&model.WorkflowStep{}).Error)
	require.NoError(t, env.db.Model(&model.WorkflowInstance{}).Where("id = ?", "mod-snapshot").
		Update("status", model.WorkflowStatusFailed).Error)

	require.NoError(t, env.moderation.Run(ctx, "mod-snapshot", ModerationParams{CommentID: reply.ID}))

	emails = drainEmails(t, env)
	require.Len(t, emails, 1)
	assert.Equal(t, "parent@example.com", emails[0].To)
	assert.Contains(t, emails[0].HTML, "Alice")
	assert.Equal(t, 1, env.moderator.Calls())
}
