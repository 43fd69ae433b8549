package config

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/models"
)

// Config holds the project config values
type Config struct {
	Env  string
	Port string

	// APIURL is the backend REST base including the /api prefix
	APIURL          string
	WSURL           string
	Token           string
	SendDestination string
	TopicPrefix     string
	ReconnectDelay  time.Duration
	HeartBeat       time.Duration
	Resubscribe     bool
	HTTPTimeout     time.Duration

	// LocalAPIToken protects the local agent API
	LocalAPIToken   string
	RefreshSchedule string
}

// New sets up all config related services
func New() *Config {
	// a missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		zap.S().Warnw("failed to load .env", "error", err)
	}

	env := os.Getenv("ENV")
	logger, err := setLogger(env)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		Env:             env,
		Port:            getenv("PORT", "8080"),
		APIURL:          strings.TrimRight(os.Getenv("CHAT_API_URL"), "/"),
		WSURL:           os.Getenv("CHAT_WS_URL"),
		Token:           os.Getenv("CHAT_TOKEN"),
		SendDestination: getenv("CHAT_SEND_DESTINATION", "/app/chat.send"),
		TopicPrefix:     getenv("CHAT_TOPIC_PREFIX", "/topic/"),
		ReconnectDelay:  duration("CHAT_RECONNECT_DELAY", 5*time.Second),
		HeartBeat:       duration("CHAT_HEARTBEAT", 10*time.Second),
		Resubscribe:     boolean("CHAT_RESUBSCRIBE", true),
		HTTPTimeout:     duration("CHAT_HTTP_TIMEOUT", 10*time.Second),
		LocalAPIToken:   os.Getenv("LOCAL_API_TOKEN"),
		RefreshSchedule: getenv("DIRECTORY_REFRESH_SCHEDULE", "@every 30s"),
	}
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().Errorw(message, "status", httpStatusCode, "error", err)
	resp := models.ErrorMessageResponse{Response: models.MessageError{Message: message}}
	if err != nil {
		resp.Response.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		zap.S().Warnw("invalid duration, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func boolean(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		zap.S().Warnw("invalid boolean, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return b
}
