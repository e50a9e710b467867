package config

const (
	defaultSocketName              = "icxpd.sock"
	defaultLockName                = "icxpd.lock"
	defaultPIDName                 = "icxpd.pid"
	defaultConfigName              = "config.toml"
	defaultCommandQueueSize        = 64
	defaultMaxLineBytes            = 64 * 1024
	defaultShutdownConnectAttempts = 10
	defaultShutdownConnectDelayMs  = 50
	defaultShutdownPollAttempts    = 20
	defaultShutdownPollIntervalMs  = 25
	defaultDrainTimeoutMs          = 500
	defaultAcceptRetryDelayMs      = 50
	defaultLogBufferSize           = 4096
	defaultLogRetentionDays        = 14
	defaultWriterJoinTimeoutMs     = 1000
	defaultJournalName             = "journal.db"
	defaultLogFileName             = "logs/icxpd.log"
)

func defaultWriters() []Writer {
	return []Writer{
		{Kind: WriterNull, Name: "Null Writer", JoinTimeoutMs: defaultWriterJoinTimeoutMs},
	}
}

// Default returns a Config populated with repository defaults. Paths stay
// relative until Load resolves them against the work directory.
func Default() Config {
	return Config{
		Paths: Paths{
			SocketName: defaultSocketName,
		},
		Listener: Listener{
			CommandQueueSize:        defaultCommandQueueSize,
			MaxLineBytes:            defaultMaxLineBytes,
			ShutdownConnectAttempts: defaultShutdownConnectAttempts,
			ShutdownConnectDelayMs:  defaultShutdownConnectDelayMs,
			ShutdownPollAttempts:    defaultShutdownPollAttempts,
			ShutdownPollIntervalMs:  defaultShutdownPollIntervalMs,
			DrainTimeoutMs:          defaultDrainTimeoutMs,
			AcceptRetryDelayMs:      defaultAcceptRetryDelayMs,
		},
		Logging: Logging{
			BufferSize:    defaultLogBufferSize,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
