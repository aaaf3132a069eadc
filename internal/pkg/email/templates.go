package email

import (
	"bytes"
	"fmt"
	"html/template"
)

const layoutHead = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">`

const layoutFoot = `
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">此邮件由 {{.SiteName}} 自动发送，请勿回复。</p>
    </div>
</body>
</html>`

var adminFlaggedTmpl = template.Must(template.New("admin_flagged").Parse(layoutHead + `
        <h2 style="color: #dc2626;">有评论需要人工审核</h2>
        <p>文章：<strong>{{.PostTitle}}</strong></p>
        <p>评论者：{{.CommenterName}}</p>
        <div style="background-color: #f3f4f6; padding: 15px; margin: 20px 0;">{{.Preview}}</div>
        <p>原因：{{.Reason}}</p>
        <div style="text-align: center; margin: 30px 0;">
            <a href="{{.QueueURL}}" style="background-color: #2563eb; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">前往审核队列</a>
        </div>` + layoutFoot))

var replyTmpl = template.Must(template.New("reply").Parse(layoutHead + `
        <h2 style="color: #2563eb;">你的评论收到了新回复</h2>
        <p>{{.ReplierName}} 在《{{.PostTitle}}》中回复了你：</p>
        <div style="background-color: #f3f4f6; padding: 15px; margin: 20px 0;">{{.Preview}}</div>
        <div style="text-align: center; margin: 30px 0;">
            <a href="{{.CommentURL}}" style="background-color: #2563eb; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">查看回复</a>
        </div>
        <p style="color: #6b7280; font-size: 12px;">不想再收到回复提醒？<a href="{{.UnsubscribeURL}}">退订</a></p>` + layoutFoot))

// AdminFlaggedData 评论被标记时发给管理员
type AdminFlaggedData struct {
	SiteName      string
	PostTitle     string
	CommenterName string
	Preview       string
	Reason        string
	QueueURL      string
}

// ReplyData 评论被回复时发给原评论作者
type ReplyData struct {
	SiteName       string
	PostTitle      string
	ReplierName    string
	Preview        string
	CommentURL     string
	UnsubscribeURL string
}

// RenderAdminFlagged 渲染管理员审核提醒
func RenderAdminFlagged(d AdminFlaggedData) (subject, body string, err error) {
	body, err = render(adminFlaggedTmpl, d)
	return fmt.Sprintf("[%s] 评论待审核：%s", d.SiteName, d.PostTitle), body, err
}

// RenderReply 渲染回复提醒
func RenderReply(d ReplyData) (subject, body string, err error) {
	body, err = render(replyTmpl, d)
	return fmt.Sprintf("%s 回复了你在《%s》的评论", d.ReplierName, d.PostTitle), body, err
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
