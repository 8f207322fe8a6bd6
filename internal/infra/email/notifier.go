package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/fiapx/fiapx-gif-service/internal/domain/entity"
	"go.uber.org/zap"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	send   sendFunc
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, send: smtp.SendMail, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, notice entity.FailureNotice) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	err := n.send(addr, nil, n.from, []string{notice.UserEmail}, n.compose(notice))
	if err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", notice.UserEmail),
			zap.String("job_id", notice.JobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", notice.UserEmail),
		zap.String("job_id", notice.JobID),
	)
	return nil
}

func (n *SMTPNotifier) compose(notice entity.FailureNotice) []byte {
	subject := fmt.Sprintf("FIAP X - GIF Conversion Failed [Job %s]", notice.JobID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"We could not turn your video into a GIF.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Video: %s\r\n"+
			"Reason: %s\r\n\r\n"+
			"Please try again with a different video or sample rate, or contact support.\r\n\r\n"+
			"-- FIAP X GIF Service",
		notice.JobID, notice.VideoKey, notice.Reason,
	)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.from, notice.UserEmail, subject, body,
	)
	return []byte(msg)
}
