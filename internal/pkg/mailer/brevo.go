package mailer

import (
	"context"
	"fmt"

	"esim_store/internal/pkg/config"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// Mailer 客户邮件通知
type Mailer interface {
	SendEsimReady(ctx context.Context, toEmail, packageName, iccid, qrCodeURL, activationCode string) error
}

// BrevoMailer 通过 Brevo 发送交易类邮件
type BrevoMailer struct {
	client    *brevo.APIClient
	fromEmail string
	fromName  string
}

// NewBrevoMailer 创建 Brevo 邮件客户端
func NewBrevoMailer() (*BrevoMailer, error) {
	cfg := config.GlobalConfig.Email
	if cfg.BrevoAPIKey == "" || cfg.FromEmail == "" {
		return nil, fmt.Errorf("email config is missing")
	}

	apiCfg := brevo.NewConfiguration()
	apiCfg.AddDefaultHeader("api-key", cfg.BrevoAPIKey)

	return &BrevoMailer{
		client:    brevo.NewAPIClient(apiCfg),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}, nil
}

// SendEsimReady 发送 "eSIM 已就绪" 安装邮件
func (m *BrevoMailer) SendEsimReady(ctx context.Context, toEmail, packageName, iccid, qrCodeURL, activationCode string) error {
	subject := fmt.Sprintf("您的 eSIM 已就绪 - %s", packageName)

	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head><meta charset="UTF-8"><title>eSIM 已就绪</title></head>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px;">
				<h1 style="color: #333;">您的 eSIM 已就绪</h1>
				<p style="color: #666; font-size: 16px;">套餐：%s</p>
				<p style="color: #666; font-size: 14px;">ICCID：%s</p>
				<p style="color: #666; font-size: 16px;">扫描下方二维码安装 eSIM：</p>
				<img src="%s" alt="eSIM QR Code" style="width: 240px; height: 240px; margin: 20px 0;" />
				<p style="color: #999; font-size: 14px;">也可以手动输入激活码：</p>
				<div style="background-color: #eef1f4; padding: 12px; border-radius: 6px; font-family: monospace; word-break: break-all;">%s</div>
				<p style="color: #999; font-size: 12px; margin-top: 30px;">安装前请确认设备支持 eSIM 并已连接 WiFi。</p>
			</div>
		</body>
		</html>
	`, packageName, iccid, qrCodeURL, activationCode)

	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  m.fromName,
			Email: m.fromEmail,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: toEmail},
		},
		Subject:     subject,
		HtmlContent: htmlContent,
	}

	_, resp, err := m.client.TransactionalEmailsApi.SendTransacEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("send esim ready email: %w", err)
	}
	defer resp.Body.Close()

	return nil
}
