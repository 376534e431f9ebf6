package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel        zapcore.Level
	ActhorModbusTcp ActhorModbusTCPConfig `mapstructure:"acthor_modbus_tcp"`
	MQTT            MQTTConfig            `mapstructure:"mqtt"`

	MonitorConfig MonitorConfig `mapstructure:"monitor"`
	PowerConfig   PowerConfig   `mapstructure:"power"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type ActhorModbusTCPConfig struct {
	Host string
	Port uint
	// DeviceId is the Modbus unit id, 1 on a factory device.
	DeviceId             uint   `mapstructure:"device_id"`
	RequestTimeoutMillis uint32 `mapstructure:"request_timeout_millis"`
	DegradedThreshold    uint   `mapstructure:"degraded_threshold"`
	PollRetries          uint   `mapstructure:"poll_retries"`
	RetryBackoffMillis   uint32 `mapstructure:"retry_backoff_millis"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

type PowerConfig struct {
	// MaxPower caps commanded power targets in watts. 0 disables the cap.
	MaxPower uint32 `mapstructure:"max_power"`
	// BusyRetryMillis is the delay before retrying a write that collided
	// with an in-flight poll request.
	BusyRetryMillis uint32 `mapstructure:"busy_retry_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
