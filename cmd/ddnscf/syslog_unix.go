//go:build !windows && !plan9

package main

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
	lsyslog "github.com/sirupsen/logrus/hooks/syslog"
)

func syslogHook() (logrus.Hook, error) {
	return lsyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_DAEMON, "cloudflare-ddns")
}
