package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       Server      `mapstructure:"server"`
	Postgres     Postgres    `mapstructure:"postgres"`
	Redis        Redis       `mapstructure:"redis"`
	Broker       Broker      `mapstructure:"broker"`
	Cron         Cron        `mapstructure:"cron"`
	Relay        RelayConfig `mapstructure:"relay"`
	Mail         Mail        `mapstructure:"mail"`
	Tokens       Tokens      `mapstructure:"tokens"`
	RateLimit    RateLimit   `mapstructure:"ratelimit"`
	Auth         Auth        `mapstructure:"auth"`
	Links        Links       `mapstructure:"links"`
	Reminders    Reminders   `mapstructure:"reminders"`
	Geocode      Geocode     `mapstructure:"geocode"`
	HTTPClient   HTTPClient  `mapstructure:"httpclient"`
	LoggingLevel string      `mapstructure:"logging-level"`
}

type Server struct {
	Port          string `mapstructure:"port"`
	SwaggerHost   string `mapstructure:"swagger_host"`
	SwaggerSchema string `mapstructure:"swagger_schema"`
	BodyLimit     int    `mapstructure:"body_limit"`
	// CIDR-список прокси, которым разрешено передавать X-Forwarded-For
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	// Origin фронтенда через запятую; пусто — "*" без credentials
	AllowOrigins string `mapstructure:"allow_origins"`
}

type Postgres struct {
	ConnString     string `mapstructure:"conn_string"`
	MaxConnections int32  `mapstructure:"max_connections"`
	MigrationsDir  string `mapstructure:"migrations_dir"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Broker struct {
	Kafka Kafka `mapstructure:"kafka"`
}

type Kafka struct {
	Enabled      bool   `mapstructure:"enabled"`
	Brokers      string `mapstructure:"brokers"`
	ReaderTopic  string `mapstructure:"readertopic"`
	ReaderUsr    string `mapstructure:"readerusr"`
	ReaderUsrPwd string `mapstructure:"readerusrpwd"`
	WriterTopic  string `mapstructure:"writertopic"`
	WriterUsr    string `mapstructure:"writerusr"`
	WriterUsrPwd string `mapstructure:"writerusrpwd"`
	MaxAttempts  int    `mapstructure:"maxattempts"`
}

type Cron struct {
	ReminderSchedule string `mapstructure:"reminderschedule"` // "0 0 7 * * *" - каждый день в 07:00
	CleanupSchedule  string `mapstructure:"cleanupschedule"`
	// Сколько хранить использованные/просроченные токены перед удалением
	TokenRetention time.Duration `mapstructure:"tokenretention"`
}

type RelayConfig struct {
	Workers     int           `mapstructure:"workers"`
	BatchSize   int           `mapstructure:"batchsize"`
	Lease       time.Duration `mapstructure:"lease"`
	PollPeriod  time.Duration `mapstructure:"pollperiod"`
	MaxAttempts int           `mapstructure:"maxattempts"`
	BaseBackoff time.Duration `mapstructure:"basebackoff"`
	MaxBackoff  time.Duration `mapstructure:"maxbackoff"`
	SendTimeout time.Duration `mapstructure:"sendtimeout"`
}

type Mail struct {
	Transport string `mapstructure:"transport"` // smtp | kafka | log
	From      string `mapstructure:"from"`
	SMTPHost  string `mapstructure:"smtp_host"`
	SMTPPort  int    `mapstructure:"smtp_port"`
	SMTPUser  string `mapstructure:"smtp_user"`
	SMTPPwd   string `mapstructure:"smtp_password"`
	SMTPSSL   bool   `mapstructure:"smtp_ssl"`
	// адрес правления, на который уходят сообщения из контактной формы
	ContactRecipient string `mapstructure:"contact_recipient"`
}

type Tokens struct {
	PasswordResetTTL time.Duration `mapstructure:"passwordresetttl"`
	InvitationTTL    time.Duration `mapstructure:"invitationttl"`
	UnsubscribeTTL   time.Duration `mapstructure:"unsubscribettl"`
}

type RateLimit struct {
	Store        string        `mapstructure:"store"` // redis | memory
	MaxAttempts  int           `mapstructure:"maxattempts"`
	Window       time.Duration `mapstructure:"window"`
	Lockout      time.Duration `mapstructure:"lockout"`
	StoreTimeout time.Duration `mapstructure:"storetimeout"`
}

type Auth struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type Links struct {
	BaseURL string `mapstructure:"base_url"`
}

type Reminders struct {
	DaysBefore []int  `mapstructure:"daysbefore"`
	TimeZone   string `mapstructure:"timezone"`
}

type Geocode struct {
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"rps"`
}

type HTTPClient struct {
	ConnectTimeout        time.Duration `mapstructure:"connecttimeout"`
	TLSHandshakeTimeout   time.Duration `mapstructure:"tlshandshaketimeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"responseheadertimeout"`
	ExpectContinueTimeout time.Duration `mapstructure:"expectcontinuetimeout"`

	// Пул соединений
	IdleConnTimeout     time.Duration `mapstructure:"idleconntimeout"`
	MaxIdleConns        int           `mapstructure:"maxidleconns"`
	MaxIdleConnsPerHost int           `mapstructure:"maxidleconnsperhost"`
	MaxConnsPerHost     int           `mapstructure:"maxconnsperhost"`
	KeepAlives          bool          `mapstructure:"keepalives"`

	// Общий таймаут клиента. 0 — контролируем дедлайном через context.
	ClientTimeout time.Duration `mapstructure:"clienttimeout"`

	UserAgent  string `mapstructure:"useragent"`
	MaxRetries int    `mapstructure:"maxretries"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging-level", "info")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.swagger_host", "localhost:8080")
	v.SetDefault("server.swagger_schema", "http")
	v.SetDefault("server.body_limit", 1024*1024)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.allow_origins", "http://localhost:3000")

	v.SetDefault("postgres.conn_string", "")
	v.SetDefault("postgres.max_connections", 5)
	v.SetDefault("postgres.migrations_dir", "resources/migrations")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("broker.kafka.enabled", false)
	v.SetDefault("broker.kafka.brokers", "")
	v.SetDefault("broker.kafka.readertopic", "vereinsportal.mail-requests")
	v.SetDefault("broker.kafka.readerusr", "")
	v.SetDefault("broker.kafka.readerusrpwd", "")
	v.SetDefault("broker.kafka.writertopic", "vereinsportal.mail-outgoing")
	v.SetDefault("broker.kafka.writerusr", "")
	v.SetDefault("broker.kafka.writerusrpwd", "")
	v.SetDefault("broker.kafka.maxattempts", 3)

	v.SetDefault("cron.reminderschedule", "0 0 7 * * *")
	v.SetDefault("cron.cleanupschedule", "0 30 3 * * *")
	v.SetDefault("cron.tokenretention", 30*24*time.Hour)

	v.SetDefault("relay.workers", 4)
	v.SetDefault("relay.batchsize", 20)
	v.SetDefault("relay.lease", 2*time.Minute)
	v.SetDefault("relay.pollperiod", 5*time.Second)
	v.SetDefault("relay.maxattempts", 8)
	v.SetDefault("relay.basebackoff", 30*time.Second)
	v.SetDefault("relay.maxbackoff", 6*time.Hour)
	v.SetDefault("relay.sendtimeout", 20*time.Second)

	v.SetDefault("mail.transport", "log")
	v.SetDefault("mail.from", "noreply@localhost")
	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.smtp_user", "")
	v.SetDefault("mail.smtp_password", "")
	v.SetDefault("mail.smtp_ssl", false)
	v.SetDefault("mail.contact_recipient", "")

	v.SetDefault("tokens.passwordresetttl", 24*time.Hour)
	v.SetDefault("tokens.invitationttl", 7*24*time.Hour)
	v.SetDefault("tokens.unsubscribettl", 60*24*time.Hour)

	v.SetDefault("ratelimit.store", "memory")
	v.SetDefault("ratelimit.maxattempts", 5)
	v.SetDefault("ratelimit.window", 15*time.Minute)
	v.SetDefault("ratelimit.lockout", 15*time.Minute)
	v.SetDefault("ratelimit.storetimeout", 500*time.Millisecond)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("links.base_url", "http://localhost:3000")

	v.SetDefault("reminders.daysbefore", []int{7, 1})
	v.SetDefault("reminders.timezone", "Europe/Berlin")

	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.rps", 1.0)

	v.SetDefault("httpclient.connecttimeout", 5*time.Second)
	v.SetDefault("httpclient.tlshandshaketimeout", 5*time.Second)
	v.SetDefault("httpclient.responseheadertimeout", 10*time.Second)
	v.SetDefault("httpclient.expectcontinuetimeout", time.Second)
	v.SetDefault("httpclient.idleconntimeout", 90*time.Second)
	v.SetDefault("httpclient.maxidleconns", 10)
	v.SetDefault("httpclient.maxidleconnsperhost", 2)
	v.SetDefault("httpclient.maxconnsperhost", 4)
	v.SetDefault("httpclient.keepalives", true)
	v.SetDefault("httpclient.clienttimeout", 0)
	v.SetDefault("httpclient.useragent", "vereinsportal/1.0")
	v.SetDefault("httpclient.maxretries", 2)
}

func NewConfig() (Config, error) {
	return load(viper.New(), ".")
}

func load(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)

	v.AutomaticEnv()
	// Настраиваем замену точек и дефисов на подчеркивания для переменных окружения
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(path)

	var conf Config
	err := v.ReadInConfig()
	// Игнорируем ошибку, если файл не найден - используем только переменные окружения
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return conf, err
		}
	}

	err = v.Unmarshal(&conf)

	return conf, err
}
