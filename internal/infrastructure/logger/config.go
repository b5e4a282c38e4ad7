package logger

import (
	"os"
	"runtime"
)

type Config struct {
	Level      Level             `json:"level"       yaml:"level"       mapstructure:"level"`
	Format     string            `json:"format"      yaml:"format"      mapstructure:"format"` // console, json, text
	Output     string            `json:"output"      yaml:"output"      mapstructure:"output"` // stdout, stderr, file
	FilePath   string            `json:"file_path"   yaml:"file_path"   mapstructure:"file_path"`
	MaxSize    int               `json:"max_size"    yaml:"max_size"    mapstructure:"max_size"` // MB
	MaxBackups int               `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int               `json:"max_age"     yaml:"max_age"     mapstructure:"max_age"` // days
	Compress   bool              `json:"compress"    yaml:"compress"    mapstructure:"compress"`
	Fields     map[string]string `json:"fields"      yaml:"fields"      mapstructure:"fields"`
}

// envFields lists the environment variables copied into every log line,
// keyed by the field name they are logged under.
var envFields = map[string]string{
	"k8s_namespace": "KUBERNETES_NAMESPACE",
	"k8s_pod":       "KUBERNETES_POD_NAME",
	"k8s_node":      "KUBERNETES_NODE_NAME",
	"container_id":  "HOSTNAME",
	"docker_image":  "DOCKER_IMAGE",
	"app_version":   "APP_VERSION",
	"environment":   "APP_ENV",
}

func GetDefaultFields() Fields {
	hostname, _ := os.Hostname()

	fields := Fields{
		"hostname":   hostname,
		"pid":        os.Getpid(),
		"go_version": runtime.Version(),
		"service":    "fleet-live",
	}

	for field, env := range envFields {
		if v := os.Getenv(env); v != "" {
			fields[field] = v
		}
	}

	return fields
}

func NewDefaultConfig() *Config {
	config := &Config{
		Level:      LevelInfo,
		Format:     "console",
		Output:     "stdout",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
		Fields:     make(map[string]string),
	}

	for k, v := range GetDefaultFields() {
		if str, ok := v.(string); ok {
			config.Fields[k] = str
		}
	}

	return config
}
