package util

import (
	"github.com/siku2/acthor2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		ActhorModbusTcp: config.ActhorModbusTCPConfig{
			Host:     "-.-.-.-",
			Port:     502,
			DeviceId: 1,
		},
		MQTT: config.MQTTConfig{
			Host: "localhost",
			Port: 1883,
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 5000,
		},
		PowerConfig: config.PowerConfig{
			MaxPower:        3000,
			BusyRetryMillis: 100,
		},
		Port: 8080,
	}
}
