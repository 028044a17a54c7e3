package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ AuditSink       = (*MemoryAuditSink)(nil)
	_ CredentialCodec = JSONCredentialCodec{}
	_ ErrorMapper     = MapError

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
