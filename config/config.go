package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv          string
	AppPort         string
	MetricsPort     string
	ShutdownTimeout time.Duration

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NatsURL string

	KafkaBrokers []string
	KafkaTopic   string

	S3Region string
	S3Bucket string

	JWTAlg           string
	JWTSecret        string
	JWTPublicKeyPath string
}

// Load reads config.yaml from the working directory when present and lets
// CHATKIT_* environment variables override individual keys.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("CHATKIT")
	v.AutomaticEnv()

	v.SetDefault("app_env", "development")
	v.SetDefault("app_port", "8084")
	v.SetDefault("metrics_port", "9094")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db", "chatkit")
	v.SetDefault("redis_db", 0)
	v.SetDefault("kafka_topic", "chat.lifecycle")
	v.SetDefault("jwt_alg", "HS256")

	if err := v.ReadInConfig(); err != nil {
		// config file is optional; env and defaults still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return &Config{
		AppEnv:          v.GetString("app_env"),
		AppPort:         v.GetString("app_port"),
		MetricsPort:     v.GetString("metrics_port"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),

		MongoURI: v.GetString("mongo_uri"),
		MongoDB:  v.GetString("mongo_db"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		NatsURL: v.GetString("nats_url"),

		KafkaBrokers: v.GetStringSlice("kafka_brokers"),
		KafkaTopic:   v.GetString("kafka_topic"),

		S3Region: v.GetString("s3_region"),
		S3Bucket: v.GetString("s3_bucket"),

		JWTAlg:           v.GetString("jwt_alg"),
		JWTSecret:        v.GetString("jwt_secret"),
		JWTPublicKeyPath: v.GetString("jwt_public_key_path"),
	}, nil
}
