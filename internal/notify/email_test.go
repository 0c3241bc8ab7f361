package notify

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/sift/internal/model"
)

// stalledSMTPServer accepts connections and never sends a greeting.
func stalledSMTPServer(t *testing.T) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(io.Discard, conn)
			}()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err = strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestEmailSinkHonorsContextDeadline(t *testing.T) {
	host, port := stalledSMTPServer(t)

	sink := NewEmailSink(EmailConfig{
		Host:       host,
		Port:       port,
		From:       "alerts@example.com",
		Recipients: []string{"ops@example.com"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := sink.Notify(ctx, Notification{
		AlertType: model.AlertTypeHighErrorRate,
		Severity:  model.SeverityCritical,
		Subject:   "Log Alert: High Error Rate",
		Body:      "Error rate is 25.0%",
	})
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second,
		"Notify must return once the context deadline passes")
}

func TestEmailSinkRequiresRecipients(t *testing.T) {
	sink := NewEmailSink(EmailConfig{Host: "localhost", Port: 25})
	err := sink.Notify(context.Background(), Notification{Subject: "x"})
	require.Error(t, err)
}

func TestEmailMessageListsAllRecipients(t *testing.T) {
	sink := NewEmailSink(EmailConfig{
		From:       "alerts@example.com",
		Recipients: []string{"ops@example.com", "oncall@example.com"},
	})

	msg := sink.message(Notification{Subject: "Log Alert", Body: "plain"})
	require.Contains(t, msg, "To: ops@example.com, oncall@example.com\r\n")
	require.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	require.Contains(t, msg, "plain\r\n")
}

func TestEmailMessagePrefersHTMLBody(t *testing.T) {
	sink := NewEmailSink(EmailConfig{
		From:       "alerts@example.com",
		Recipients: []string{"ops@example.com"},
	})

	msg := sink.message(Notification{
		Subject:  "Log Alert",
		Body:     "plain",
		HTMLBody: "<html><body>rich</body></html>",
	})
	require.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n")
	require.Contains(t, msg, "<html><body>rich</body></html>")
}
