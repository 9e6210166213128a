// Package accesslog implements the ambient Common-Log-Format-style
// request log stage of the server chain (§4.9), written to the path
// named by the config's access_log field.
package accesslog

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/semihalev/zlog/v2"

	"github.com/compassd/dcompass/config"
	"github.com/compassd/dcompass/middleware"
)

// AccessLog appends one line per answered query to a log file.
type AccessLog struct {
	logFile *os.File
}

// New returns a new AccessLog. A blank cfg.AccessLog disables logging
// entirely.
func New(cfg *config.Config) middleware.Handler {
	var logFile *os.File

	if cfg.AccessLog != "" {
		f, err := os.OpenFile(cfg.AccessLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			zlog.Error("access log file open failed", "error", strings.Trim(err.Error(), "\n"))
		} else {
			logFile = f
		}
	}

	return &AccessLog{logFile: logFile}
}

// Name returns the middleware name.
func (a *AccessLog) Name() string { return "accesslog" }

// ServeDNS implements middleware.Handler.
func (a *AccessLog) ServeDNS(ctx context.Context, ch *middleware.Chain) {
	ch.Next(ctx)

	w := ch.Writer

	if a.logFile == nil || !w.Written() || w.Internal() {
		return
	}

	resp := w.Msg()
	if resp == nil || len(resp.Question) == 0 {
		return
	}

	record := []string{
		w.RemoteIP().String() + " -",
		"[" + time.Now().Format("02/Jan/2006:15:04:05 -0700") + "]",
		formatQuestion(resp.Question[0]),
		w.Proto(),
		dns.RcodeToString[resp.Rcode],
		strconv.Itoa(resp.Len()),
	}

	if _, err := a.logFile.WriteString(strings.Join(record, " ") + "\n"); err != nil {
		zlog.Error("access log write failed", "error", strings.Trim(err.Error(), "\n"))
	}
}

func formatQuestion(q dns.Question) string {
	return "\"" + strings.ToLower(q.Name) + " " + dns.ClassToString[q.Qclass] + " " + dns.TypeToString[q.Qtype] + "\""
}
